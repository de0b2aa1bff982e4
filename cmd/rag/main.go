// Package main is the entry point for the Scholar-X RAG service.
//
// The service answers textbook questions with retrieval-augmented
// generation: Milvus holds the chunk embeddings, an LLM provider
// generates grounded answers, and every answer is checked against the
// retrieved contexts before it is returned.
package main

import (
	_ "go.uber.org/automaxprocs/maxprocs"

	"github.com/kart-io/scholar-x/cmd/rag/app"
)

func main() {
	app.NewApp().Run()
}
