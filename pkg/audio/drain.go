package audio

// Drain consumes ch until it closes, discarding every value. A fanout tap
// that nobody reads stalls its sender, so a consumer that stops caring about
// a stream hands it to Drain instead of abandoning it.
func Drain[T any](ch <-chan T) {
	for range ch {
	}
}
