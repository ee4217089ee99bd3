package model

// Invocation is a single command request delivered by the messaging gateway.
type Invocation struct {
	ID        string    `json:"id,omitempty"`
	Principal Principal `json:"principal"`
	Command   string    `json:"command"`
	Args      []string  `json:"args,omitempty"`
	Channel   string    `json:"channel,omitempty"`

	// Members maps member ids mentioned in Args to display names, when the
	// gateway knows them.
	Members map[string]string `json:"members,omitempty"`
}

// ResponseKind classifies the outcome of a dispatched command.
type ResponseKind string

const (
	KindSuccess        ResponseKind = "success"
	KindDenied         ResponseKind = "denied"
	KindNotFound       ResponseKind = "not_found"
	KindAlreadyExists  ResponseKind = "already_exists"
	KindArgumentError  ResponseKind = "argument_error"
	KindInternalError  ResponseKind = "internal_error"
	KindUnknownCommand ResponseKind = "unknown_command"
)

// String returns the string representation of the kind.
func (k ResponseKind) String() string {
	return string(k)
}

// IsValid checks whether the kind is a known value.
func (k ResponseKind) IsValid() bool {
	switch k {
	case KindSuccess, KindDenied, KindNotFound, KindAlreadyExists,
		KindArgumentError, KindInternalError, KindUnknownCommand:
		return true
	}
	return false
}

// Response is the uniform reply to an Invocation.
type Response struct {
	InvocationID string         `json:"invocation_id,omitempty"`
	Command      string         `json:"command,omitempty"`
	Kind         ResponseKind   `json:"kind"`
	Text         string         `json:"text"`
	Data         map[string]any `json:"data,omitempty"`

	// Silent responses are not delivered back to the channel.
	Silent bool `json:"silent,omitempty"`
}

// OK reports whether the command succeeded.
func (r *Response) OK() bool {
	return r.Kind == KindSuccess
}
