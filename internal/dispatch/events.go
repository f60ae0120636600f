package dispatch

import "strings"

// Sources of audience actions.
const (
	SourceReward = "reward"
	SourceChat   = "chat"
	SourceIRC    = "irc"
	SourceMQTT   = "mqtt"
)

// RedemptionEvent is a channel-point reward redemption.
type RedemptionEvent struct {
	RewardTitle string
	Input       string
	UserName    string
	UserLogin   string
	UserID      string
}

// ChatCommand is a chat line parsed into a keyword and arguments.
type ChatCommand struct {
	Keyword string
	Args    []string
	User    string
}

// redemptionPayload is the event of
// channel.channel_points_custom_reward_redemption.add.
type redemptionPayload struct {
	ID        string `json:"id"`
	UserID    string `json:"user_id"`
	UserLogin string `json:"user_login"`
	UserName  string `json:"user_name"`
	UserInput string `json:"user_input"`
	Status    string `json:"status"`
	Reward    struct {
		ID     string `json:"id"`
		Title  string `json:"title"`
		Prompt string `json:"prompt"`
		Cost   int    `json:"cost"`
	} `json:"reward"`
}

func (p redemptionPayload) event() RedemptionEvent {
	return RedemptionEvent{
		RewardTitle: p.Reward.Title,
		Input:       p.UserInput,
		UserName:    p.UserName,
		UserLogin:   p.UserLogin,
		UserID:      p.UserID,
	}
}

// chatPayload is the event of channel.chat.message.
type chatPayload struct {
	ChatterUserID    string `json:"chatter_user_id"`
	ChatterUserLogin string `json:"chatter_user_login"`
	ChatterUserName  string `json:"chatter_user_name"`
	MessageID        string `json:"message_id"`
	Message          struct {
		Text string `json:"text"`
	} `json:"message"`
}

// ParseCommand splits a chat line into a command. With a non-empty prefix
// the keyword must start with it. The keyword is lower-cased; arguments are
// kept as typed.
func ParseCommand(text, prefix string) (ChatCommand, bool) {
	fields := strings.Fields(text)
	if len(fields) == 0 {
		return ChatCommand{}, false
	}

	keyword := fields[0]
	if prefix != "" {
		rest, ok := strings.CutPrefix(keyword, prefix)
		if !ok {
			return ChatCommand{}, false
		}
		keyword = rest
	}
	if keyword == "" {
		return ChatCommand{}, false
	}

	return ChatCommand{Keyword: strings.ToLower(keyword), Args: fields[1:]}, true
}

func normalizeTitle(title string) string {
	return strings.ToLower(strings.TrimSpace(title))
}
