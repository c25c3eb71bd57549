// Package embeddings turns text into fixed-dimension vectors.
//
// FastEmbed runs an ONNX model in process (cgo builds only); TEI calls a
// text-embeddings-inference server over HTTP. NewProvider selects one from
// configuration.
package embeddings
