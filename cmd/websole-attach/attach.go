package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/url"
	"os"
	"os/signal"
	"strconv"
	"sync"

	"github.com/gorilla/websocket"
	"golang.org/x/term"

	"github.com/zetxtech/websole/internal/ws"
)

// session pumps bytes between the local terminal and the server.
type session struct {
	conn *websocket.Conn
	out  io.Writer

	writeMu sync.Mutex
}

func (s *session) writeJSON(msg *ws.Message) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	return s.conn.WriteJSON(msg)
}

func (s *session) writeBinary(p []byte) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	return s.conn.WriteMessage(websocket.BinaryMessage, p)
}

func (s *session) resize(rows, cols int) error {
	if rows <= 0 || cols <= 0 {
		return nil
	}
	return s.writeJSON(&ws.Message{Type: ws.MessageTypeResize, Rows: uint16(rows), Cols: uint16(cols)})
}

// readLoop copies program output to out until the connection ends. It
// returns the exit code announced by the server, or -1 if none was.
func (s *session) readLoop() (int, error) {
	code := -1
	for {
		mt, data, err := s.conn.ReadMessage()
		if err != nil {
			if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				return code, nil
			}
			return code, err
		}

		switch mt {
		case websocket.BinaryMessage:
			if _, err := s.out.Write(data); err != nil {
				return code, err
			}
		case websocket.TextMessage:
			var msg ws.Message
			if err := json.Unmarshal(data, &msg); err != nil {
				continue
			}
			switch msg.Type {
			case ws.MessageTypeExited:
				if msg.Code != nil {
					code = *msg.Code
				}
				fmt.Fprintf(s.out, "\r\n[program exited with code %d]\r\n", code)
			case ws.MessageTypeRestarted:
				code = -1
				fmt.Fprint(s.out, "\r\n[program restarted]\r\n")
			case ws.MessageTypeError:
				fmt.Fprintf(s.out, "\r\n[error: %s]\r\n", msg.Error)
			}
		}
	}
}

// writeLoop sends everything read from in as raw input.
func (s *session) writeLoop(in io.Reader) error {
	buf := make([]byte, 4096)
	for {
		n, err := in.Read(buf)
		if n > 0 {
			if werr := s.writeBinary(buf[:n]); werr != nil {
				return werr
			}
		}
		if err != nil {
			return err
		}
	}
}

// attach dials target and bridges it to the process's terminal. With raw
// set, stdin is put into raw mode so keys reach the remote program as typed.
func attach(ctx context.Context, target *url.URL, raw bool) (int, error) {
	stdin := int(os.Stdin.Fd())
	isTerm := term.IsTerminal(stdin)

	u := *target
	if isTerm {
		if cols, rows, err := term.GetSize(stdin); err == nil {
			q := u.Query()
			q.Set("rows", strconv.Itoa(rows))
			q.Set("cols", strconv.Itoa(cols))
			u.RawQuery = q.Encode()
		}
	}

	conn, resp, err := websocket.DefaultDialer.DialContext(ctx, u.String(), nil)
	if err != nil {
		if resp != nil {
			return 1, fmt.Errorf("failed to connect: %s", resp.Status)
		}
		return 1, fmt.Errorf("failed to connect: %w", err)
	}
	defer conn.Close()

	if raw && isTerm {
		oldState, err := term.MakeRaw(stdin)
		if err != nil {
			return 1, fmt.Errorf("failed to set raw mode: %w", err)
		}
		defer term.Restore(stdin, oldState)
	}

	s := &session{conn: conn, out: os.Stdout}

	if isTerm {
		winch := make(chan os.Signal, 1)
		notifyResize(winch)
		defer signal.Stop(winch)
		go func() {
			for range winch {
				if cols, rows, err := term.GetSize(stdin); err == nil {
					s.resize(rows, cols)
				}
			}
		}()
	}

	go s.writeLoop(os.Stdin)

	return s.readLoop()
}
