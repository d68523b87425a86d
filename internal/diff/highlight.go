package diff

import (
	"io"
	"path/filepath"

	"github.com/alecthomas/chroma/v2"
	"github.com/alecthomas/chroma/v2/formatters"
	"github.com/alecthomas/chroma/v2/lexers"
	"github.com/alecthomas/chroma/v2/styles"
)

// Highlight writes source to w with ANSI syntax colouring. The language is
// picked from filename; unknown languages are written unchanged.
func Highlight(w io.Writer, filename, source string) error {
	lexer := lexerForFile(filename)
	if lexer == nil {
		_, err := io.WriteString(w, source)
		return err
	}

	iterator, err := lexer.Tokenise(nil, source)
	if err != nil {
		_, err := io.WriteString(w, source)
		return err
	}

	style := styles.Get("dracula")
	if style == nil {
		style = styles.Fallback
	}
	formatter := formatters.Get("terminal256")
	if formatter == nil {
		formatter = formatters.Fallback
	}
	return formatter.Format(w, style, iterator)
}

func lexerForFile(filename string) chroma.Lexer {
	lexer := lexers.Match(filename)
	if lexer == nil {
		if ext := filepath.Ext(filename); ext != "" {
			lexer = lexers.Match("file" + ext)
		}
	}
	if lexer != nil {
		lexer = chroma.Coalesce(lexer)
	}
	return lexer
}
