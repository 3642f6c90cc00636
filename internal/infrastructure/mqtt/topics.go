package mqtt

// DefaultTopicPrefix is used by a zero Topics.
const DefaultTopicPrefix = "playout"

// Topics names the playout topics under Prefix:
//
//	{prefix}/timeline/{studio}   retained timeline, core to devices
//	{prefix}/playback/{studio}   playback confirmations, devices to core
//	{prefix}/system/status       retained online/offline status and LWT
type Topics struct {
	Prefix string
}

func (t Topics) join(parts ...string) string {
	topic := t.Prefix
	if topic == "" {
		topic = DefaultTopicPrefix
	}
	for _, p := range parts {
		topic += "/" + p
	}
	return topic
}

// Timeline is the retained timeline topic of a studio.
func (t Topics) Timeline(studioID string) string { return t.join("timeline", studioID) }

// Playback is where a studio's devices confirm playback.
func (t Topics) Playback(studioID string) string { return t.join("playback", studioID) }

// Status carries the core's online state.
func (t Topics) Status() string { return t.join("system", "status") }
