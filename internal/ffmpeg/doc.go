// Package ffmpeg runs the external ffmpeg binary: argument templates per
// conversion direction, duration probing, bounded execution with
// kill-on-timeout, and discovery of the executable.
package ffmpeg
