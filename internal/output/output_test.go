package output

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWriter_MessageKinds(t *testing.T) {
	tests := []struct {
		name  string
		write func(w *Writer)
		want  []string
	}{
		{
			name:  "status with icon",
			write: func(w *Writer) { w.Status("🔍", "Checking embedder...") },
			want:  []string{"🔍", "Checking embedder..."},
		},
		{
			name:  "status without icon is indented",
			write: func(w *Writer) { w.Status("", "Socket: /tmp/trenton.sock") },
			want:  []string{"   Socket: /tmp/trenton.sock"},
		},
		{
			name:  "success",
			write: func(w *Writer) { w.Successf("Registered folder %d: %s", 3, "/music") },
			want:  []string{"✅", "Registered folder 3: /music"},
		},
		{
			name:  "warning",
			write: func(w *Writer) { w.Warning("Matching file 'a.mp3' has been deleted from source") },
			want:  []string{"⚠️", "has been deleted from source"},
		},
		{
			name:  "error",
			write: func(w *Writer) { w.Errorf("job %s failed", "j1") },
			want:  []string{"❌", "job j1 failed"},
		},
		{
			name:  "key value",
			write: func(w *Writer) { w.KeyValue("Files", 42) },
			want:  []string{"Files:", "42"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			// Given: a plain writer over a buffer
			buf := &bytes.Buffer{}

			// When: writing the message
			tt.write(New(buf))

			// Then: every fragment is present
			for _, s := range tt.want {
				assert.Contains(t, buf.String(), s)
			}
		})
	}
}

func TestWriter_Progress_PrintsProgressBar(t *testing.T) {
	// Given: a writer with a buffer
	buf := &bytes.Buffer{}
	w := New(buf)

	// When: a job is half way through
	w.Progress(5, 10, "running")

	// Then: the line shows percentage and state without a trailing newline
	output := buf.String()
	assert.Contains(t, output, "50%")
	assert.Contains(t, output, "running")
	assert.NotContains(t, output, "\n")

	// When: the job completes
	w.Progress(10, 10, "completed")

	// Then: the line is terminated
	assert.True(t, strings.HasSuffix(buf.String(), "\n"))
}

func TestWriter_Progress_ZeroTotal_NoOutput(t *testing.T) {
	// Given: a writer with a buffer
	buf := &bytes.Buffer{}
	w := New(buf)

	// When: a job has not classified any files yet
	w.Progress(0, 0, "queued")

	// Then: nothing is printed
	assert.Empty(t, buf.String())
}

func TestProgressBar_Render(t *testing.T) {
	tests := []struct {
		name     string
		current  int
		total    int
		width    int
		wantFull int // number of filled characters
	}{
		{
			name:     "0 percent",
			current:  0,
			total:    100,
			width:    10,
			wantFull: 0,
		},
		{
			name:     "50 percent",
			current:  50,
			total:    100,
			width:    10,
			wantFull: 5,
		},
		{
			name:     "100 percent",
			current:  100,
			total:    100,
			width:    10,
			wantFull: 10,
		},
		{
			name:     "25 percent",
			current:  25,
			total:    100,
			width:    20,
			wantFull: 5,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			bar := renderProgressBar(tt.current, tt.total, tt.width)

			// Count filled characters (█)
			filled := strings.Count(bar, "█")
			assert.Equal(t, tt.wantFull, filled)

			// Total width should be correct
			assert.Equal(t, tt.width, len([]rune(bar)))
		})
	}
}

func TestWriter_Newline_PrintsEmptyLine(t *testing.T) {
	// Given: a writer with a buffer
	buf := &bytes.Buffer{}
	w := New(buf)

	// When: printing a newline
	w.Newline()

	// Then: output is just a newline
	assert.Equal(t, "\n", buf.String())
}

func TestNew_NoColorForNonTerminal(t *testing.T) {
	// Given/When: creating a writer over a buffer
	w := New(&bytes.Buffer{})

	// Then: color is off
	assert.False(t, w.useColor)
}

func TestWriter_JSON_Indents(t *testing.T) {
	buf := &bytes.Buffer{}
	w := New(buf)

	require.NoError(t, w.JSON(map[string]int{"files": 3}))

	assert.Equal(t, "{\n  \"files\": 3\n}\n", buf.String())
}
