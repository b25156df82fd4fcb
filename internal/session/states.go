package session

// State is the coarse connection phase. It gates which sub-state table the
// dispatcher consults.
type State int

const (
	StateConnecting State = iota
	StateAuthenticating
	StateAuthenticated
)

func (s State) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateAuthenticating:
		return "authenticating"
	case StateAuthenticated:
		return "authenticated"
	}
	return "state(?)"
}

// SubState is the fine-grained workflow step. The enumeration is flat:
// multi-step workflows are chains of sub-states, each consuming one input
// event and explicitly setting the next.
type SubState int

const (
	SubNone SubState = iota

	// Authentication workflow.
	SubLoginName
	SubLoginPassword
	SubRegisterPassword

	// Main menu (hotkey-driven).
	SubMenu

	// Message composition chain.
	SubComposeTo
	SubComposeSubject
	SubComposePrivate
	SubComposeBody

	// Reading and navigation.
	SubReadPrompt
	SubJoinChannel
	SubJoinSub

	// Paging and chat.
	SubPageWho
	SubChat

	SubLogoffConfirm

	// subStateCount keeps the enum closed for the totality check.
	subStateCount
)

var subNames = [subStateCount]string{
	SubNone:             "none",
	SubLoginName:        "login-name",
	SubLoginPassword:    "login-password",
	SubRegisterPassword: "register-password",
	SubMenu:             "menu",
	SubComposeTo:        "compose-to",
	SubComposeSubject:   "compose-subject",
	SubComposePrivate:   "compose-private",
	SubComposeBody:      "compose-body",
	SubReadPrompt:       "read-prompt",
	SubJoinChannel:      "join-channel",
	SubJoinSub:          "join-sub",
	SubPageWho:          "page-who",
	SubChat:             "chat",
	SubLogoffConfirm:    "logoff-confirm",
}

func (s SubState) String() string {
	if s < 0 || s >= subStateCount {
		return "sub-state(?)"
	}
	return subNames[s]
}

// InputMode selects how raw bytes become input events: one event per
// keystroke, or one per terminated line. It is independent of sub-state.
type InputMode int

const (
	ModeHotkey InputMode = iota
	ModeLine
)
