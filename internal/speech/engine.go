package speech

import (
	"context"
	"fmt"
	"io"
	"os/exec"
	"strconv"
	"strings"

	"github.com/sashabaranov/go-openai"

	"github.com/hray3182/chime/internal/dispatch"
)

// OpenAI synthesizes speech with an OpenAI compatible audio endpoint and
// pipes the result into a player command.
type OpenAI struct {
	client *openai.Client
	model  string
	player []string
}

func NewOpenAI(apiKey, baseURL, model string, player []string) *OpenAI {
	config := openai.DefaultConfig(apiKey)
	if baseURL != "" {
		config.BaseURL = baseURL
	}
	if model == "" {
		model = string(openai.TTSModel1)
	}
	if len(player) == 0 {
		player = []string{"mpv", "--really-quiet", "-"}
	}

	return &OpenAI{
		client: openai.NewClientWithConfig(config),
		model:  model,
		player: player,
	}
}

func (o *OpenAI) Speak(ctx context.Context, text string, opts dispatch.VoiceOptions) error {
	voice := opts.Voice
	if voice == "" {
		voice = string(openai.VoiceAlloy)
	}
	resp, err := o.client.CreateSpeech(ctx, openai.CreateSpeechRequest{
		Model:          openai.SpeechModel(o.model),
		Input:          text,
		Voice:          openai.SpeechVoice(voice),
		ResponseFormat: openai.SpeechResponseFormatMp3,
		Speed:          opts.Speed,
	})
	if err != nil {
		return fmt.Errorf("failed to call speech API: %w", err)
	}
	defer resp.Close()

	return Play(ctx, o.player, resp)
}

// Command speaks through a local program such as espeak-ng. The text is the
// last argument; "{speed}" in an argument is replaced by the speed factor.
type Command struct {
	Args []string
}

func NewCommand(args []string) *Command {
	if len(args) == 0 {
		args = []string{"espeak-ng", "-v", "ja"}
	}
	return &Command{Args: args}
}

func (c *Command) Speak(ctx context.Context, text string, opts dispatch.VoiceOptions) error {
	speed := opts.Speed
	if speed <= 0 {
		speed = 1
	}
	args := make([]string, 0, len(c.Args))
	for _, a := range c.Args[1:] {
		args = append(args, strings.ReplaceAll(a, "{speed}", strconv.FormatFloat(speed, 'f', -1, 64)))
	}
	args = append(args, text)

	out, err := exec.CommandContext(ctx, c.Args[0], args...).CombinedOutput()
	if err != nil {
		return fmt.Errorf("%s: %w: %s", c.Args[0], err, strings.TrimSpace(string(out)))
	}
	return nil
}

// Play feeds audio to the stdin of a player command and waits for it to exit.
func Play(ctx context.Context, player []string, audio io.Reader) error {
	if len(player) == 0 {
		return fmt.Errorf("no audio player configured")
	}
	cmd := exec.CommandContext(ctx, player[0], player[1:]...)
	cmd.Stdin = audio
	if out, err := cmd.CombinedOutput(); err != nil {
		return fmt.Errorf("%s: %w: %s", player[0], err, strings.TrimSpace(string(out)))
	}
	return nil
}
