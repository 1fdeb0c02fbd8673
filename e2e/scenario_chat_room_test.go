package e2e

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"
)

// ScenarioChatRoomSuite walks the full happy path against a live server:
// register, connect, join, type, broadcast, whisper, disconnect.
type ScenarioChatRoomSuite struct {
	BaseChatSuite
}

func TestScenarioChatRoom(t *testing.T) {
	suite.Run(t, new(ScenarioChatRoomSuite))
}

func (s *ScenarioChatRoomSuite) TestRoomConversation() {
	room := fmt.Sprintf("e2e-%d", time.Now().UnixNano())
	aliceName := fmt.Sprintf("alice%d", time.Now().UnixNano()%1_000_000)
	bobName := fmt.Sprintf("bob%d", time.Now().UnixNano()%1_000_000)

	s.Step("Register users")
	aliceToken := s.RegisterUser(aliceName)
	bobToken := s.RegisterUser(bobName)

	s.Step("Connect and join")
	alice := s.Connect(aliceToken)
	defer alice.Close()
	bob := s.Connect(bobToken)
	defer bob.Close()

	alice.Send(map[string]any{"type": "join-room", "room": room})
	s.Require().Empty(alice.Expect("history")["messages"])

	bob.Send(map[string]any{"type": "join-room", "room": room})
	bob.Expect("history")
	roster := bob.Expect("presence")["onlineUsernames"]
	s.Require().Contains(roster, aliceName)
	s.Require().Contains(roster, bobName)

	s.Step("Typing indicator")
	alice.Send(map[string]any{"type": "typing", "room": room, "isTyping": true})
	s.Require().Contains(bob.Expect("typing-changed")["typingUsernames"], aliceName)

	s.Step("Broadcast message")
	alice.Send(map[string]any{"type": "send-message", "room": room, "text": "hello from e2e"})
	msg := bob.Expect("message")["message"].(map[string]any)
	s.Require().Equal("hello from e2e", msg["text"])
	s.Require().Equal(aliceName, msg["sender"])

	s.Step("Typing deadline expires without an explicit stop")
	cleared := bob.Expect("typing-changed")["typingUsernames"]
	s.Require().NotContains(cleared, aliceName)

	s.Step("Private message")
	bob.Send(map[string]any{"type": "send-message", "room": room, "text": "whisper", "to": aliceName})
	private := alice.Expect("message")["message"].(map[string]any)
	s.Require().Equal("whisper", private["text"])
	s.Require().Equal(aliceName, private["to"])

	s.Step("History replays for a late joiner")
	carolToken := s.RegisterUser(fmt.Sprintf("carol%d", time.Now().UnixNano()%1_000_000))
	carol := s.Connect(carolToken)
	defer carol.Close()
	carol.Send(map[string]any{"type": "join-room", "room": room})
	backlog := carol.Expect("history")["messages"].([]any)
	s.Require().NotEmpty(backlog)

	s.Step("Disconnect updates presence")
	bob.Close()
	s.Require().Eventually(func() bool {
		roster := alice.Expect("presence")["onlineUsernames"].([]any)
		for _, name := range roster {
			if name == bobName {
				return false
			}
		}
		return true
	}, 10*time.Second, 100*time.Millisecond)
}
