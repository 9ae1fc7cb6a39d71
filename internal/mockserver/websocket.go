package mockserver

import (
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"eval-console/internal/model"
	"eval-console/pkg/logging"
)

// upgrader WebSocket 升级器配置
var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// EventGateway 评测进度推送网关
//
// 客户端按运行订阅；连接建立即推送 initial 全量帧，之后由进度
// 推进器广播 progress/update 帧，运行结束广播 completed 帧并收尾。
type EventGateway struct {
	state  *memoryState
	logger *logging.Logger

	mu      sync.RWMutex
	clients map[int64]map[*websocket.Conn]bool
}

// newEventGateway 创建推送网关
func newEventGateway(state *memoryState, logger *logging.Logger) *EventGateway {
	return &EventGateway{
		state:   state,
		logger:  logger,
		clients: make(map[int64]map[*websocket.Conn]bool),
	}
}

// pushFrame 推送消息帧
type pushFrame struct {
	Type string      `json:"type"` // initial | progress | update | completed
	Data interface{} `json:"data"`
}

// HandleWebSocket 处理 WebSocket 连接请求
//
// 路由: GET /api/v1/ws/evaluations/{id}
func (g *EventGateway) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	runID, ok := pathID(r, "id")
	if !ok {
		http.Error(w, "run id required", http.StatusBadRequest)
		return
	}

	g.state.mu.RLock()
	run, exists := g.state.runs[runID]
	var snapshot model.EvaluationRun
	if exists {
		snapshot = *run
	}
	g.state.mu.RUnlock()
	if !exists {
		http.Error(w, "run not found", http.StatusNotFound)
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		g.logger.WithError(err).Warn("WebSocket 升级失败")
		return
	}
	defer conn.Close()

	g.addClient(runID, conn)
	defer g.removeClient(runID, conn)

	g.logger.WSEventLog(runID, "connected")

	// 先发全量状态
	conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
	if err := conn.WriteJSON(pushFrame{Type: "initial", Data: snapshot}); err != nil {
		return
	}
	// 已终止的运行直接补一帧 completed
	if snapshot.Status.IsTerminal() {
		conn.WriteJSON(pushFrame{Type: "completed", Data: snapshot})
		return
	}

	done := make(chan struct{})
	go g.readPump(conn, done)

	pingTicker := time.NewTicker(30 * time.Second)
	defer pingTicker.Stop()
	for {
		select {
		case <-done:
			return
		case <-pingTicker.C:
			conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// readPump 读取客户端消息，处理心跳与关闭
func (g *EventGateway) readPump(conn *websocket.Conn, done chan struct{}) {
	defer close(done)
	conn.SetReadLimit(512)
	conn.SetReadDeadline(time.Now().Add(60 * time.Second))
	conn.SetPongHandler(func(string) error {
		conn.SetReadDeadline(time.Now().Add(60 * time.Second))
		return nil
	})
	conn.SetPingHandler(func(data string) error {
		conn.SetReadDeadline(time.Now().Add(60 * time.Second))
		conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
		return conn.WriteMessage(websocket.PongMessage, []byte(data))
	})

	for {
		_, msg, err := conn.ReadMessage()
		if err != nil {
			return
		}
		var req map[string]interface{}
		if json.Unmarshal(msg, &req) == nil && req["type"] == "ping" {
			conn.WriteJSON(map[string]string{"type": "pong"})
		}
	}
}

func (g *EventGateway) addClient(runID int64, conn *websocket.Conn) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.clients[runID] == nil {
		g.clients[runID] = make(map[*websocket.Conn]bool)
	}
	g.clients[runID][conn] = true
}

func (g *EventGateway) removeClient(runID int64, conn *websocket.Conn) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if clients, ok := g.clients[runID]; ok {
		delete(clients, conn)
		if len(clients) == 0 {
			delete(g.clients, runID)
		}
	}
}

// Broadcast 向某运行的所有客户端推送一帧
func (g *EventGateway) Broadcast(runID int64, frameType string, data interface{}) {
	g.mu.RLock()
	conns := make([]*websocket.Conn, 0, len(g.clients[runID]))
	for conn := range g.clients[runID] {
		conns = append(conns, conn)
	}
	g.mu.RUnlock()

	frame := pushFrame{Type: frameType, Data: data}
	for _, conn := range conns {
		conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
		if err := conn.WriteJSON(frame); err != nil {
			g.logger.WithError(err).Warn("推送失败", "run_id", runID)
		}
	}
}
