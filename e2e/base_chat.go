package e2e

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/gookit/color"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/suite"
)

// BaseChatSuite dials a running chat-relay server over HTTP and websocket.
// It is a live suite: every test registers fresh throwaway accounts so runs
// stay independent.
type BaseChatSuite struct {
	suite.Suite
	Config Config
}

// SetupSuite loads the environment configuration before running tests
func (s *BaseChatSuite) SetupSuite() {
	var err error
	s.Config, err = LoadConfig()
	s.Require().NoError(err)
	if s.Config.ServerAddr == "" {
		s.T().Skip("CHAT_SERVER_ADDR not set, skipping live suite")
	}
}

func (s *BaseChatSuite) Step(name string) {
	header := fmt.Sprintf("  ====== %s ======", name)
	if s.Config.Colours {
		header = color.New(color.BgBlack, color.FgGreen).Render(header)
	}
	s.T().Log(header)
}

// RegisterUser creates a throwaway account and returns its token.
func (s *BaseChatSuite) RegisterUser(username string) string {
	body, err := json.Marshal(map[string]string{
		"username": username,
		"email":    fmt.Sprintf("%s-%d@example.com", username, time.Now().UnixNano()),
		"password": "s3cret-pass",
	})
	s.Require().NoError(err)

	url := fmt.Sprintf("http://%s/api/auth/register", s.Config.ServerAddr)
	resp, err := http.Post(url, "application/json", bytes.NewReader(body))
	s.Require().NoError(err)
	defer resp.Body.Close()
	s.Require().Equal(http.StatusCreated, resp.StatusCode)

	var out struct {
		User struct {
			Token string `json:"token"`
		} `json:"user"`
	}
	s.Require().NoError(json.NewDecoder(resp.Body).Decode(&out))
	return out.User.Token
}

type ChatClient struct {
	suite *BaseChatSuite
	Conn  *websocket.Conn
}

// Connect opens an authenticated websocket to the server.
func (s *BaseChatSuite) Connect(token string) *ChatClient {
	url := fmt.Sprintf("ws://%s/ws?token=%s", s.Config.ServerAddr, token)
	conn, resp, err := websocket.DefaultDialer.Dial(url, nil)
	if resp != nil {
		defer resp.Body.Close()
	}
	s.Require().NoError(err, "Failed to connect to chat server at "+s.Config.ServerAddr)
	return &ChatClient{suite: s, Conn: conn}
}

func (c *ChatClient) Close() {
	_ = c.Conn.Close()
}

func (c *ChatClient) Send(frame map[string]any) {
	if c.suite.Config.DebugJSON {
		raw, _ := json.Marshal(frame)
		c.suite.T().Logf("SEND %s", raw)
	}
	c.suite.Require().NoError(c.Conn.WriteJSON(frame))
}

// Expect reads until a frame of the wanted type arrives, skipping presence
// and typing churn from other clients.
func (c *ChatClient) Expect(frameType string) map[string]any {
	deadline := time.Now().Add(10 * time.Second)
	for {
		c.suite.Require().NoError(c.Conn.SetReadDeadline(deadline))
		var decoded map[string]any
		c.suite.Require().NoError(c.Conn.ReadJSON(&decoded), "waiting for %q", frameType)
		if c.suite.Config.DebugJSON {
			raw, _ := json.Marshal(decoded)
			c.suite.T().Logf("RECV %s", raw)
		}
		if decoded["type"] == frameType {
			return decoded
		}
	}
}
