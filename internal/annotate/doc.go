// Package annotate provides the annotators that prepare text for synthesis.
//
// An annotator rewrites text with prosody markup and, when streaming,
// separates speech segments with tts.Marker. The claude provider asks the
// Anthropic API for emotion, speed and volume tags; the sentences provider
// only splits text into sentences and needs no network. CachingAnnotator
// puts any of them behind the persistent annotation cache.
package annotate
