// Package avert classifies free-text model responses against semantically
// labelled groups of reference texts.
//
// A response is compared with every candidate of the groups "correct",
// "wrong", "refusal" and "formulation_mistake" through an embedding or rerank
// backend. Candidate scores are reduced per group and normalized into a
// distribution that sums to one; the group with the highest share is the
// verdict.
//
// # Basic Usage
//
// Create a scorer bound to a backend and wrap it in an Engine:
//
//	s, err := scorer.New(scorer.Config{
//		Method:       types.MethodRerank,
//		EndpointType: types.EndpointTEI,
//		Endpoint:     "http://localhost:8080",
//	}, log)
//	if err != nil {
//		log.Error("scorer", "error", err)
//	}
//	defer s.Close()
//
//	engine, err := avert.NewEngine(s, avert.DefaultConfig(), log)
//
// # Scoring
//
// Evaluate builds the candidate groups from the raw answers of a question
// and scores the response against them:
//
//	result, err := engine.Evaluate(ctx, response, candidates.Request{
//		Correct:        []string{"Paris"},
//		CorrectIndices: []int{1},
//		Wrong:          []string{"Lyon", "Nice"},
//		WrongIndices:   []int{0, 2},
//		Enhance:        true,
//		WithOptions:    true,
//	}, "mmlu")
//	fmt.Println(result.Best, result.Distribution.Get("correct"))
//
// Score accepts groups built elsewhere, for tasks whose candidates do not fit
// the multiple-choice builder.
//
// # Templates and instructions
//
// Templates wrap the response ({query}) and the candidates ({document}) before
// they reach the backend. One of them may carry an {instruction} placeholder
// that is filled per task from the instruction map, with "default" as the
// fallback entry.
package avert
