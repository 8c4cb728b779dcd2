package notify

import (
	"fmt"
	"strconv"
)

// Color constants for message severity.
const (
	ColorSuccess = "#36a64f"
	ColorInfo    = "#2196f3"
	ColorError   = "#e53935"
)

// Message is an event rendered for humans.
type Message struct {
	Title  string
	Body   string
	Color  string
	Fields []Field
}

// Field is a key-value pair shown alongside a message.
type Field struct {
	Name  string
	Value string
	Short bool
}

// Format renders ev for chat and email sinks.
func Format(ev Event) Message {
	name := ev.TrackTitle
	if name == "" {
		name = ev.TrackID
	}
	switch ev.Kind {
	case TrackQueued:
		return Message{
			Title: fmt.Sprintf("Track %q queued for review", name),
			Body:  fmt.Sprintf("Reviewers are being matched to %q.", name),
			Color: ColorInfo,
			Fields: []Field{
				{Name: "Track", Value: ev.TrackID, Short: true},
				{Name: "Reviews requested", Value: strconv.Itoa(ev.Requested), Short: true},
			},
		}
	case ReviewMilestone:
		title := fmt.Sprintf("%q is half way there", name)
		color := ColorInfo
		if ev.Completed >= ev.Requested {
			title = fmt.Sprintf("All reviews are in for %q", name)
			color = ColorSuccess
		}
		return Message{
			Title: title,
			Body:  fmt.Sprintf("%d of %d reviews completed.", ev.Completed, ev.Requested),
			Color: color,
			Fields: []Field{
				{Name: "Track", Value: ev.TrackID, Short: true},
				{Name: "Progress", Value: fmt.Sprintf("%d/%d", ev.Completed, ev.Requested), Short: true},
			},
		}
	case IntegrityAlert:
		msg := Message{
			Title: "Integrity alert",
			Body:  ev.Detail,
			Color: ColorError,
		}
		if ev.TrackID != "" {
			msg.Fields = []Field{{Name: "Track", Value: ev.TrackID, Short: true}}
		}
		return msg
	default:
		return Message{Title: string(ev.Kind), Body: ev.Detail, Color: ColorInfo}
	}
}
