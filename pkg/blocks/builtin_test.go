package blocks

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func render(t *testing.T, typeName string, mode Mode, props Props) string {
	t.Helper()
	def, ok := Default().Lookup(typeName)
	require.True(t, ok)
	merged := Props{}
	for k, v := range def.Defaults {
		merged[k] = v
	}
	for k, v := range props {
		merged[k] = v
	}
	return def.Render(mode, merged, nil)
}

func TestHeading_Render(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name  string
		props Props
		want  string
	}{
		{"h1 size", Props{"content": "Hi", "level": "h1"}, "font-size:28px"},
		{"h2 size", Props{"content": "Hi", "level": "h2"}, "font-size:22px"},
		{"h3 size", Props{"content": "Hi", "level": "h3"}, "font-size:18px"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			out := render(t, "Heading", ModeHTML, tt.props)
			require.Contains(t, out, tt.want)
			require.Contains(t, out, ">Hi</p>")
		})
	}

	t.Run("escapes content", func(t *testing.T) {
		t.Parallel()
		out := render(t, "Heading", ModeHTML, Props{"content": "a<b"})
		require.Contains(t, out, "a&lt;b")
		require.NotContains(t, out, "a<b")
	})

	t.Run("text mode", func(t *testing.T) {
		t.Parallel()
		require.Equal(t, "Hi\n\n", render(t, "Heading", ModeText, Props{"content": "Hi"}))
	})
}

func TestButton_Render(t *testing.T) {
	t.Parallel()

	t.Run("href kept", func(t *testing.T) {
		t.Parallel()
		out := render(t, "Button", ModeHTML, Props{"label": "Go", "href": "https://example.com/x"})
		require.Contains(t, out, `href="https://example.com/x"`)
		require.Contains(t, out, ">Go</a>")
	})

	t.Run("javascript href dropped", func(t *testing.T) {
		t.Parallel()
		out := render(t, "Button", ModeHTML, Props{"label": "Go", "href": "javascript:alert(1)"})
		require.Contains(t, out, `href=""`)
		require.NotContains(t, out, "javascript")
	})

	t.Run("text mode includes target", func(t *testing.T) {
		t.Parallel()
		out := render(t, "Button", ModeText, Props{"label": "Go", "href": "https://example.com"})
		require.Equal(t, "Go (https://example.com)\n\n", out)
	})
}

func TestImage_Render(t *testing.T) {
	t.Parallel()

	t.Run("empty src renders nothing", func(t *testing.T) {
		t.Parallel()
		require.Empty(t, render(t, "Image", ModeHTML, Props{"src": ""}))
	})

	t.Run("alt text in text mode", func(t *testing.T) {
		t.Parallel()
		require.Equal(t, "[Logo]\n\n", render(t, "Image", ModeText, Props{"alt": "Logo"}))
	})

	t.Run("width formatted without fraction", func(t *testing.T) {
		t.Parallel()
		out := render(t, "Image", ModeHTML, Props{"src": "https://cdn.example.com/a.png", "width": float64(480)})
		require.Contains(t, out, `width="480"`)
	})
}

func TestContainer_Render_JoinsSlotFragments(t *testing.T) {
	t.Parallel()

	out := render(t, "Container", ModeHTML, Props{"content": []string{"<p>a</p>", "<p>b</p>"}})
	require.Contains(t, out, "<p>a</p><p>b</p>")
	require.True(t, strings.HasPrefix(out, "<div "))
}

func TestMarkdown_Render(t *testing.T) {
	t.Parallel()

	t.Run("html", func(t *testing.T) {
		t.Parallel()
		out := render(t, "Markdown", ModeHTML, Props{"content": "# Title\n\nbody"})
		require.Contains(t, out, "<h1>Title</h1>")
		require.Contains(t, out, "<p>body</p>")
	})

	t.Run("text keeps source", func(t *testing.T) {
		t.Parallel()
		require.Equal(t, "# Title\n", render(t, "Markdown", ModeText, Props{"content": "# Title"}))
	})
}

func TestSafeColor(t *testing.T) {
	t.Parallel()

	require.Equal(t, "#ff0000", safeColor("#ff0000"))
	require.Equal(t, "rgb(1, 2, 3)", safeColor("rgb(1, 2, 3)"))
	require.Equal(t, "#000000", safeColor(`red;"onload=`))
}
