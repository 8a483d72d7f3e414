package api

import (
	"encoding/json"
	"net/http"

	"github.com/gorilla/websocket"
	"github.com/npezzotti/go-chatrelay/internal/server"
)

func (a *RelayApp) writeJson(w http.ResponseWriter, statusCode int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if v == nil {
		return
	}

	if err := json.NewEncoder(w).Encode(v); err != nil {
		a.log.Error().Err(err).Msg("json encode")
	}
}

func (a *RelayApp) listRooms(w http.ResponseWriter, _ *http.Request) {
	a.writeJson(w, http.StatusOK, a.store.List())
}

func (a *RelayApp) getRoom(w http.ResponseWriter, r *http.Request) {
	room, ok := a.store.Get(r.PathValue("roomId"))
	if !ok {
		errResp := NewRoomNotFoundError()
		a.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	a.writeJson(w, http.StatusOK, room)
}

func (a *RelayApp) healthCheck(w http.ResponseWriter, r *http.Request) {
	if err := a.store.Ping(r.Context()); err != nil {
		a.log.Error().Err(err).Msg("health check failed")
		errResp := NewInternalServerError(err)
		a.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	w.WriteHeader(http.StatusOK)
	w.Write([]byte("OK"))
}

func (a *RelayApp) serveWs(w http.ResponseWriter, r *http.Request) {
	upgrader := websocket.Upgrader{
		CheckOrigin: a.checkOrigin,
	}
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		a.log.Warn().Err(err).Msg("error upgrading connection")
		return
	}

	client := server.NewClient(conn, a.cs, a.log)
	a.log.Debug().Str("conn_id", client.Id()).Str("remote_addr", r.RemoteAddr).Msg("client connected")

	a.cs.RegisterClient(client)
	go client.Write()
	go client.Read()
}
