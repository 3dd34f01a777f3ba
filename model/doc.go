// Package model defines the provider‑agnostic reasoning abstraction used by
// the gateway and the agents, plus a scriptable MockModel for tests.
//
// A Model turns a Request (instructions, prompt and a small context map) into
// a single text Response. Retries, timeouts and validation are not a model
// concern; the gateway package layers them on top of any Model.
//
// Providers (OpenAI, Anthropic, Gemini) live in sub-packages so higher layers
// remain decoupled from vendor SDKs.
package model
