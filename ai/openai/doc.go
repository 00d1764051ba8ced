// Package openai implements ai.Embedder against OpenAI-compatible
// embedding APIs via langchaingo. It works with OpenAI itself as well as
// local servers speaking the same protocol (Ollama, vLLM, LocalAI).
package openai
