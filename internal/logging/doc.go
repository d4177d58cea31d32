// Package logging sets up structured slog logging for Trenton.
// Records go to a size-rotated JSON file under ~/.trenton/logs/ and,
// optionally, to stderr: as text when stderr is a terminal, as JSON otherwise.
package logging
