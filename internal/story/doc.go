// Package story turns a user's request into a moderated, lore-augmented
// story continuation.
//
// # Overview
//
// A request runs through a fixed sequence of stages:
//
//   - Safety: the content guard classifies the user input
//   - Retrieval: lore snippets matching the input are appended to the story context
//   - Generate: the generation backend writes the continuation
//   - Fallback: a canned redirect is returned for rejected input
//
// Safety routes to Retrieval when the input passed and to Fallback otherwise.
// Retrieval always continues to Generate. Generate and Fallback end the run.
//
// Collaborator failures never escape the pipeline. A failed retrieval leaves
// the context unchanged and a failed generation produces an apology naming
// the backend. Both are logged and counted so operators can tell a quiet
// success from a swallowed failure.
//
// # Usage
//
//	p := story.NewPipeline(story.Dependencies{
//	    Generator: lazyClient,
//	    Retriever: loreIndex,
//	    Metrics:   m,
//	}, story.DefaultConfig())
//	svc := story.NewService(p)
//	reply := svc.Generate(ctx, story.Request{UserInput: "The dragon wakes up"})
package story
