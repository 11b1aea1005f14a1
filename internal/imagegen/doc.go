// ABOUTME: Package doc for the image synthesis dispatcher
// ABOUTME: Engine strategy table over five upstream image providers

// Package imagegen synthesizes images through a table of engines
// (openai, google, fal, luma, replicate). The dispatcher resolves the
// "auto" engine from the chat model's provider, resolves the upstream
// credential through the vault, fills in the engine's default sub-model
// and returns the image as base64 wrapped in a markdown data URI.
//
// Each engine accepts only its own parameter subset: size and style go
// to openai, aspect ratio to google and the HTTP engines, quality only
// to the dall-e models. Unsupported parameters are dropped silently so
// one request shape serves every engine.
package imagegen
