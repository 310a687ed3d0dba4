package domain

// OutboundMedia describes a materialized media artifact ready to send.
// Path points at a local temporary file owned by the media pipeline;
// it is deleted once the send settles, success or not.
type OutboundMedia struct {
	Path     string
	MimeType string
	Caption  string
	FileName string

	// AsVoice requests voice-note delivery (audio nodes).
	AsVoice bool
	// AsDocument requests delivery as a generic file attachment, the
	// last-resort mode for videos that failed inline delivery.
	AsDocument bool
}
