// Package extraction turns a submitted source into normalized plain text.
//
// One Extractor exists per modality: PDF, DOCX, video, website and
// YouTube. Uploaded files are read from object storage through Source;
// links are fetched over HTTP. OCR, speech transcription and media
// tooling come from the media package.
//
// Every failure is an *Error carrying one of four kinds, so the pipeline
// can record a readable reason on the job:
//
//	Configuration        the payload selects no extractor
//	UnsupportedSource    a malformed storage reference or URL
//	Upstream             a storage, network or decoding failure
//	InsufficientContent  too little text survived extraction
package extraction
