// Package audio writes and plays raw 16-bit PCM: WAV headers and files for
// saved output, and streaming playback through oto/v3.
package audio
