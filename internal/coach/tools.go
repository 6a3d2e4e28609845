package coach

import "github.com/KKQanT/cringe-alert-v2/internal/platform/gemini"

const (
	ToolOpenRecorder   = "open_recorder"
	ToolSeekVideo      = "seek_video"
	ToolStartCountdown = "start_countdown"
)

// Tools are the UI actions the coach may ask the browser to perform.
func Tools() []gemini.Tool {
	return []gemini.Tool{{
		FunctionDeclarations: []gemini.FunctionDeclaration{
			{
				Name:        ToolOpenRecorder,
				Description: "Opens the recording modal so the user can record a new take.",
				Parameters: &gemini.Schema{
					Type: "OBJECT",
					Properties: map[string]*gemini.Schema{
						"focus_hint": {Type: "STRING", Description: "A short hint about what to focus on"},
					},
				},
			},
			{
				Name:        ToolSeekVideo,
				Description: "Jumps the video player to a specific timestamp.",
				Parameters: &gemini.Schema{
					Type: "OBJECT",
					Properties: map[string]*gemini.Schema{
						"timestamp_seconds": {Type: "NUMBER", Description: "The timestamp in seconds to seek to"},
					},
					Required: []string{"timestamp_seconds"},
				},
			},
			{
				Name:        ToolStartCountdown,
				Description: "Starts a 3-2-1 countdown before recording.",
				Parameters: &gemini.Schema{
					Type: "OBJECT",
					Properties: map[string]*gemini.Schema{
						"seconds": {Type: "INTEGER", Description: "Countdown duration (default: 3)"},
					},
				},
			},
		},
	}}
}
