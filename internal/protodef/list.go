package protodef

import (
	"fmt"
	"io"

	"github.com/mgutz/ansi"

	"github.com/shhac/gcall/internal/domain"
)

// palette colours the parts of a listing line.
type palette struct {
	bullet, name, req, res, stream func(string) string
}

func plain(s string) string { return s }

func newPalette(color bool) palette {
	if !color {
		return palette{bullet: plain, name: plain, req: plain, res: plain, stream: plain}
	}
	return palette{
		bullet: plain,
		name:   ansi.ColorFunc("default+b"),
		req:    ansi.ColorFunc("blue"),
		res:    ansi.ColorFunc("green"),
		stream: ansi.ColorFunc("black+h"),
	}
}

// signature renders a method as "Name (Req) returns (Res)", prefixing
// streamed sides with "stream ".
func signature(m domain.Method, p palette) string {
	side := func(stream bool, typ string) string {
		if stream {
			return p.stream("stream ") + typ
		}
		return typ
	}
	return fmt.Sprintf("%s (%s) returns (%s)",
		p.name(m.Name),
		side(m.IsClientStream, p.req(m.InputType)),
		side(m.IsServerStream, p.res(m.OutputType)),
	)
}

// List writes one line per method of svc.
func List(w io.Writer, svc *Service, color bool) error {
	p := newPalette(color)
	for _, m := range svc.Methods {
		if _, err := fmt.Fprintf(w, "%s %s\n", p.bullet("›"), signature(m, p)); err != nil {
			return err
		}
	}
	return nil
}
