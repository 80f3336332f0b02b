package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/soundprediction/avert/pkg/grouping"
	"github.com/soundprediction/avert/pkg/template"
)

// Templates handles GET /v1/templates
func Templates(c *gin.Context) {
	out := make([]gin.H, 0, len(template.Names()))
	for _, name := range template.Names() {
		t, _ := template.Predefined(name)
		out = append(out, gin.H{"name": name, "document": t.Document, "query": t.Query})
	}
	c.JSON(http.StatusOK, gin.H{"templates": out})
}

// Groupings handles GET /v1/groupings
func Groupings(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"groupings": grouping.Available()})
}
