package events

// Outbound event names.
const (
	PollCreated         = "poll-created"
	PollVoteUpdated     = "poll-vote-updated"
	PollEnded           = "poll-ended"
	QuestionAsked       = "question-asked"
	QuestionUpdated     = "question-updated"
	QuestionAnswered    = "question-answered"
	QuestionHighlighted = "question-highlighted"
	GiftSent            = "gift-sent"
	EmojiSent           = "emoji-sent"
	RoomActivityChanged = "room-activity-changed"
)

// Inbound command names.
const (
	CmdCreatePoll        = "create-poll"
	CmdVotePoll          = "vote-poll"
	CmdEndPoll           = "end-poll"
	CmdGetPollResults    = "get-poll-results"
	CmdAskQuestion       = "ask-question"
	CmdUpvoteQuestion    = "upvote-question"
	CmdDownvoteQuestion  = "downvote-question"
	CmdAnswerQuestion    = "answer-question"
	CmdHighlightQuestion = "highlight-question"
	CmdSendGift          = "send-gift"
	CmdSendEmoji         = "send-emoji"
	CmdSetActivityLevel  = "set-activity-level"
)

// Reply frame types sent back to the issuing socket only.
const (
	ReplyAck         = "ack"
	ReplyError       = "error"
	ReplyRateLimited = "rate-limited"
)

// BatchName is the event name a flushed batch of eventName events is published under.
func BatchName(eventName string) string {
	return eventName + "-batch"
}
