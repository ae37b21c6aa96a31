package scanner

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"math"

	"github.com/wudi/pdfcodec/recovery"
)

var endstreamKW = []byte("endstream")

// scanStream positions at the first data byte after the stream keyword and
// captures the payload. A declared length (SetNextStreamLength) is trusted only
// when endstream follows it; otherwise the data is delimited by scanning forward.
func (s *pdfScanner) scanStream(start int64) (Token, error) {
	dataStart, err := s.streamDataStart()
	if err != nil {
		return Token{}, err
	}
	declared := s.nextStreamLen
	s.nextStreamLen = -1

	if declared >= 0 {
		// an oversized Length is just a wrong one; the limit applies to what the scan finds
		if s.cfg.MaxStreamLength <= 0 || declared <= s.cfg.MaxStreamLength {
			if end, ok := s.checkDeclaredLength(dataStart, declared); ok {
				payload := append([]byte(nil), s.data[dataStart:dataStart+declared]...)
				s.pos = end
				return Token{Type: TokenStream, Bytes: payload, Pos: start, Int: dataStart}, nil
			}
		}
		msg := fmt.Errorf("stream Length %d does not end at endstream", declared)
		if err := s.recoverAt(dataStart, msg, "stream", recovery.IssueStreamLength); err != nil {
			return Token{}, err
		}
	}

	idx, err := s.findEndstream(dataStart)
	if err != nil {
		return Token{}, err
	}
	if idx < 0 {
		end := int64(len(s.data))
		issue, msg := recovery.IssueTruncated, "endstream not found"
		if s.cfg.MaxStreamScan > 0 && end-dataStart > s.cfg.MaxStreamScan {
			end = dataStart + s.cfg.MaxStreamScan
			issue, msg = recovery.IssueStreamLength, "endstream not found within scan limit"
		}
		if err := s.recoverAt(dataStart, errors.New(msg), "stream", issue); err != nil {
			return Token{}, err
		}
		if s.cfg.MaxStreamLength > 0 && end-dataStart > s.cfg.MaxStreamLength {
			return Token{}, errors.New("stream too long")
		}
		payload := append([]byte(nil), s.data[dataStart:end]...)
		s.pos = end
		return Token{Type: TokenStream, Bytes: payload, Pos: start, Int: dataStart}, nil
	}

	// Trim the EOL that precedes the marker
	end := idx
	if end > dataStart && s.data[end-1] == '\n' {
		end--
	}
	if end > dataStart && s.data[end-1] == '\r' {
		end--
	}
	if s.cfg.MaxStreamLength > 0 && end-dataStart > s.cfg.MaxStreamLength {
		return Token{}, errors.New("stream too long")
	}
	payload := append([]byte(nil), s.data[dataStart:end]...)
	s.pos = idx + int64(len(endstreamKW))
	return Token{Type: TokenStream, Bytes: payload, Pos: start, Int: dataStart}, nil
}

// streamDataStart consumes the end-of-line after the stream keyword. CRLF and
// LF are legal. Tolerated deviations, each reported: blanks before the EOL,
// a lone CR, CR CR LF, and data starting with no EOL at all.
func (s *pdfScanner) streamDataStart() (int64, error) {
	p := s.pos
	blanks := p
	for {
		c := s.byteAt(blanks)
		if c != ' ' && c != '\t' && c != '\f' && c != 0 {
			break
		}
		if blanks >= s.size() {
			break
		}
		blanks++
	}
	if blanks > p && isEOL(s.byteAt(blanks)) {
		if err := s.recoverAt(p, errors.New("blanks after stream keyword"), "stream", recovery.IssueStreamEOL); err != nil {
			return 0, err
		}
		p = blanks
	}

	switch {
	case s.byteAt(p) == '\r' && s.byteAt(p+1) == '\n':
		p += 2
	case s.byteAt(p) == '\n':
		p++
	case s.byteAt(p) == '\r' && s.byteAt(p+1) == '\r' && s.byteAt(p+2) == '\n':
		if err := s.recoverAt(p, errors.New("CR CR LF after stream keyword"), "stream", recovery.IssueStreamEOL); err != nil {
			return 0, err
		}
		p += 3
	case s.byteAt(p) == '\r':
		if err := s.recoverAt(p, errors.New("lone CR after stream keyword"), "stream", recovery.IssueLoneCR); err != nil {
			return 0, err
		}
		p++
	default:
		if err := s.recoverAt(p, errors.New("stream missing EOL before data"), "stream", recovery.IssueStreamEOL); err != nil {
			return 0, err
		}
		// a run of blanks stands in for the EOL
		p = blanks
	}
	if err := s.ensure(p); err != nil && !errors.Is(err, io.EOF) {
		return 0, err
	}
	return p, nil
}

// checkDeclaredLength reports whether endstream follows dataStart+n, allowing
// whitespace in between, and returns the offset just past the keyword.
func (s *pdfScanner) checkDeclaredLength(dataStart, n int64) (int64, bool) {
	if n < 0 || n > math.MaxInt64-dataStart-int64(len(endstreamKW)) {
		return 0, false
	}
	end := dataStart + n
	if err := s.ensure(end); err != nil {
		return 0, false
	}
	p := end
	for isWhitespace(s.byteAt(p)) && p < s.size() {
		p++
	}
	if err := s.ensure(p + int64(len(endstreamKW)) - 1); err != nil {
		return 0, false
	}
	if !bytes.Equal(s.data[p:p+int64(len(endstreamKW))], endstreamKW) {
		return 0, false
	}
	return p + int64(len(endstreamKW)), true
}

// findEndstream returns the offset of the first endstream keyword at or after
// from that sits on a token boundary, or -1.
func (s *pdfScanner) findEndstream(from int64) (int64, error) {
	searched := from
	for {
		if s.cfg.MaxStreamScan > 0 && searched-from > s.cfg.MaxStreamScan {
			return -1, nil
		}
		for searched+int64(len(endstreamKW)) <= int64(len(s.data)) {
			i := bytes.Index(s.data[searched:], endstreamKW)
			if i < 0 {
				searched = int64(len(s.data)) - int64(len(endstreamKW)) + 1
				break
			}
			idx := searched + int64(i)
			after := idx + int64(len(endstreamKW))
			if after >= int64(len(s.data)) && !s.eof {
				// need the following byte to judge the boundary
				searched = idx
				break
			}
			if after >= int64(len(s.data)) || isDelimiter(s.data[after]) {
				if s.cfg.MaxStreamScan > 0 && idx-from > s.cfg.MaxStreamScan {
					return -1, nil
				}
				return idx, nil
			}
			searched = idx + 1
		}
		if searched < from {
			searched = from
		}
		if s.eof {
			return -1, nil
		}
		if err := s.loadMore(); err != nil {
			return -1, err
		}
	}
}

// scanInlineImage consumes bytes after the ID keyword up to the EI delimiter.
// This is a content-stream-only construct; scanner does not interpret params.
func (s *pdfScanner) scanInlineImage(start int64) (Token, error) {
	// After ID there should be a single whitespace; consume one char if present.
	if err := s.ensure(s.pos); err != nil {
		if errors.Is(err, io.EOF) {
			return Token{}, errors.New("unterminated inline image")
		}
		return Token{}, err
	}
	if !isWhitespace(s.data[s.pos]) {
		if err := s.recover(errors.New("inline image missing required whitespace after ID"), "inline_image", recovery.IssueSyntax); err != nil {
			return Token{}, err
		}
	} else {
		ws := s.data[s.pos]
		s.pos++
		switch {
		case ws == '\r' && s.peekAhead(0) == '\n':
			s.pos++
		case !isEOL(ws) && isEOL(s.peekAhead(0)):
			// Optional EOL immediately after ID whitespace does not belong to data.
			if s.peekAhead(0) == '\r' && s.peekAhead(1) == '\n' {
				s.pos++
			}
			s.pos++
		}
	}
	dataStart := s.pos
	// Search for EI preceded by whitespace and followed by delimiter/whitespace.
	for {
		if s.cfg.MaxInlineImage > 0 && s.pos-dataStart > s.cfg.MaxInlineImage {
			return Token{}, errors.New("inline image too long")
		}
		if err := s.ensure(s.pos + 1); err != nil {
			if errors.Is(err, io.EOF) {
				return Token{}, errors.New("unterminated inline image")
			}
			return Token{}, err
		}
		if s.data[s.pos] == 'E' && s.data[s.pos+1] == 'I' {
			prevOK := s.pos > dataStart && isWhitespace(s.data[s.pos-1])
			next := s.peekAhead(2)
			nextOK := next == 0 || isDelimiter(next)
			if prevOK && nextOK {
				end := s.pos - 1
				if s.data[end] == '\n' && end > dataStart && s.data[end-1] == '\r' {
					end--
				}
				payload := append([]byte(nil), s.data[dataStart:end]...)
				if s.cfg.MaxInlineImage > 0 && int64(len(payload)) > s.cfg.MaxInlineImage {
					return Token{}, errors.New("inline image too long")
				}
				s.pos += 2
				return Token{Type: TokenInlineImage, Bytes: payload, Pos: start}, nil
			}
		}
		s.pos++
	}
}

// byteAt returns data[i], loading as needed, or 0 past EOF.
func (s *pdfScanner) byteAt(i int64) byte {
	if err := s.ensure(i); err != nil {
		return 0
	}
	return s.data[i]
}

// size is the number of bytes loaded so far.
func (s *pdfScanner) size() int64 { return int64(len(s.data)) }
