package notify

// Settings selects which channels are active
type Settings struct {
	SlackWebhook string
	Desktop      bool
}

// FromSettings assembles the active channels into one Notifier
func FromSettings(s Settings) Notifier {
	var channels []Notifier
	if s.SlackWebhook != "" {
		channels = append(channels, NewSlackNotifier(s.SlackWebhook))
	}
	if s.Desktop {
		channels = append(channels, NewDesktopNotifier(true))
	}
	if len(channels) == 0 {
		return NoopNotifier{}
	}
	return NewMultiNotifier(channels...)
}
