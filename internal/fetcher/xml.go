package fetcher

import (
	"context"
	"encoding/xml"
	"io"

	"github.com/rotisserie/eris"
	"golang.org/x/text/encoding/htmlindex"
)

// StreamXML streams repeated records out of a large XML list, such as the
// sdnEntry elements of the OFAC SDN export, without holding the document in
// memory. Elements are matched on local name only since the export is
// namespaced. Decode errors name the element ordinal and byte offset.
// Both channels are closed when processing completes.
func StreamXML[T any](ctx context.Context, r io.Reader, elementName string) (<-chan T, <-chan error) {
	outCh := make(chan T, 64)
	errCh := make(chan error, 1)

	go func() {
		defer close(outCh)
		defer close(errCh)

		dec := xml.NewDecoder(r)
		dec.CharsetReader = func(charset string, input io.Reader) (io.Reader, error) {
			enc, err := htmlindex.Get(charset)
			if err != nil {
				return nil, eris.Wrapf(err, "fetcher: unsupported xml charset %q", charset)
			}
			return enc.NewDecoder().Reader(input), nil
		}

		send := func(item T) bool {
			select {
			case outCh <- item:
				return true
			case <-ctx.Done():
				errCh <- eris.Wrap(ctx.Err(), "fetcher: xml cancelled")
				return false
			}
		}

		n := 0
		for ctx.Err() == nil {
			tok, err := dec.Token()
			if err == io.EOF {
				return
			}
			if err != nil {
				errCh <- eris.Wrapf(err, "fetcher: xml token at offset %d", dec.InputOffset())
				return
			}

			se, ok := tok.(xml.StartElement)
			if !ok || se.Name.Local != elementName {
				continue
			}

			n++
			var item T
			if err := dec.DecodeElement(&item, &se); err != nil {
				errCh <- eris.Wrapf(err, "fetcher: xml %s #%d at offset %d", elementName, n, dec.InputOffset())
				return
			}
			if !send(item) {
				return
			}
		}
		errCh <- eris.Wrap(ctx.Err(), "fetcher: xml cancelled")
	}()

	return outCh, errCh
}
