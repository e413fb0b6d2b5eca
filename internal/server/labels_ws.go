package server

import (
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	log "github.com/sirupsen/logrus"
)

const labelsWriteTimeout = 5 * time.Second

var labelsUpgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		if origin == "" {
			return true
		}
		u, err := url.Parse(origin)
		if err != nil {
			return false
		}
		host := strings.ToLower(strings.TrimSpace(r.Host))
		originHost := strings.ToLower(strings.TrimSpace(u.Host))
		return host == originHost
	},
}

// cursorMessage клиент присылает при каждом сдвиге позиции воспроизведения.
type cursorMessage struct {
	T float64 `json:"t"`
}

func (s *Server) handleLabelsWS(w http.ResponseWriter, r *http.Request) {
	t, err := parseTime(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	conn, err := labelsUpgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	s.serveLabelsConnection(conn, t)
}

// serveLabelsConnection отправляет подписи при сдвиге курсора клиента
// и при изменении хранилища. Тикер ловит изменения, пришедшие без сигнала.
func (s *Server) serveLabelsConnection(conn *websocket.Conn, t float64) {
	defer conn.Close()

	entry := log.WithField("client", uuid.NewString())
	entry.Debug("[*] Клиент подключен")
	defer entry.Debug("[*] Клиент отключен")

	cursors := make(chan float64, 1)
	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			var msg cursorMessage
			if err := conn.ReadJSON(&msg); err != nil {
				return
			}
			select {
			case cursors <- msg.T:
			default:
				select {
				case <-cursors:
				default:
				}
				cursors <- msg.T
			}
		}
	}()

	ticker := time.NewTicker(s.pushInterval)
	defer ticker.Stop()

	push := func() bool {
		payload := s.labels(t)
		_ = conn.SetWriteDeadline(time.Now().Add(labelsWriteTimeout))
		if err := conn.WriteJSON(payload); err != nil {
			entry.Debugf("[!] Ошибка отправки: %v", err)
			return false
		}
		return true
	}

	version, changed := s.watch()
	if !push() {
		return
	}

	for {
		select {
		case t = <-cursors:
			if !push() {
				return
			}
		case <-changed:
			version, changed = s.watch()
			if !push() {
				return
			}
		case <-ticker.C:
			v, c := s.watch()
			if v == version {
				continue
			}
			version, changed = v, c
			if !push() {
				return
			}
		case <-done:
			return
		}
	}
}
