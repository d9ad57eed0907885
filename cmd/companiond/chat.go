package main

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"mime"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/sandeepkv93/companiond/internal/messaging"
	"github.com/sandeepkv93/companiond/internal/model"
	"github.com/sandeepkv93/companiond/internal/views"
)

const defaultSender = "me@localhost"

func chatCmd() *cobra.Command {
	ch := &cobra.Command{Use: "chat", Short: "Encrypted conversations keyed by calendar id"}
	ch.PersistentFlags().String("sender", defaultSender, "sender email")
	ch.AddCommand(chatSendCmd())
	ch.AddCommand(chatSendFileCmd())
	ch.AddCommand(chatSendVoiceCmd())
	ch.AddCommand(chatShowCmd())
	ch.AddCommand(chatListCmd())
	ch.AddCommand(chatOpenCmd())
	ch.AddCommand(chatClearCmd())
	return ch
}

func senderFlag(cmd *cobra.Command) string {
	s, _ := cmd.Flags().GetString("sender")
	return s
}

func chatSendCmd() *cobra.Command {
	var opts messaging.SendOptions
	var style string
	cmd := &cobra.Command{
		Use:   "send <calendar-id> <text...>",
		Short: "Send a text message",
		Args:  cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			opts.FontStyle = model.FontStyle(style)
			return withApp(cmd.Context(), func(ctx context.Context, a *app) error {
				msg, err := a.svc.SendMessage(ctx, args[0], strings.Join(args[1:], " "), senderFlag(cmd), opts)
				if err != nil {
					return err
				}
				fmt.Printf("sent %s\n", msg.ID)
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&opts.TextColor, "color", "", "text color, e.g. #ff8800")
	cmd.Flags().StringVar(&style, "style", "", "normal, bold, italic or bold-italic")
	return cmd
}

func chatSendFileCmd() *cobra.Command {
	var description string
	var plain bool
	var src messaging.Source
	cmd := &cobra.Command{
		Use:   "send-file <calendar-id> <path>",
		Short: "Share a file, encrypted unless --plain",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := os.ReadFile(args[1])
			if err != nil {
				return err
			}
			encoded := base64.StdEncoding.EncodeToString(data)
			return withApp(cmd.Context(), func(ctx context.Context, a *app) error {
				msg, err := a.svc.SendFileAttachment(ctx, args[0], encoded, filepath.Base(args[1]), description, senderFlag(cmd), !plain, src)
				if err != nil {
					return err
				}
				fmt.Printf("sent %s (%s, %d bytes)\n", msg.ID, msg.Attachment.FileType, msg.Attachment.Size)
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&description, "description", "", "message text sent with the file")
	cmd.Flags().BoolVar(&plain, "plain", false, "store the file unencrypted")
	cmd.Flags().StringVar(&src.Feature, "source", "", "feature that produced the file, e.g. notes")
	cmd.Flags().StringVar(&src.ID, "source-id", "", "id within the source feature")
	cmd.Flags().BoolVar(&src.AllowEditing, "editable", false, "let the recipient edit the shared item")
	return cmd
}

func chatSendVoiceCmd() *cobra.Command {
	var mimeType string
	var duration time.Duration
	cmd := &cobra.Command{
		Use:   "send-voice <calendar-id> <audio-file>",
		Short: "Send a recorded voice clip",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			audio, err := os.ReadFile(args[1])
			if err != nil {
				return err
			}
			if mimeType == "" {
				mimeType = mime.TypeByExtension(filepath.Ext(args[1]))
			}
			if mimeType == "" {
				return errors.New("cannot infer audio type; pass --mime")
			}
			return withApp(cmd.Context(), func(ctx context.Context, a *app) error {
				msg, err := a.svc.SendVoice(ctx, args[0], senderFlag(cmd), audio, mimeType, duration)
				if err != nil {
					return err
				}
				fmt.Printf("sent %s (%s)\n", msg.ID, mimeType)
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&mimeType, "mime", "", "audio mime type (default from extension)")
	cmd.Flags().DurationVar(&duration, "duration", 0, "clip length")
	return cmd
}

func chatShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show <calendar-id>",
		Short: "Print a conversation with text decrypted",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withReader(cmd.Context(), func(ctx context.Context, a *app) error {
				list, err := a.svc.Messaging().Decrypt(ctx, args[0])
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(list)
				}
				fmt.Println(views.RenderTranscript(args[0], transcript(list)))
				return nil
			})
		},
	}
}

func chatListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List conversations",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withReader(cmd.Context(), func(ctx context.Context, a *app) error {
				ids, err := a.svc.Messaging().Conversations(ctx)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(ids)
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"Calendar", "Messages"})
				for _, id := range ids {
					msgs, err := a.svc.Messaging().Messages(ctx, id)
					if err != nil {
						return err
					}
					tw.AppendRow(table.Row{id, len(msgs)})
				}
				tw.Render()
				return nil
			})
		},
	}
}

func chatOpenCmd() *cobra.Command {
	var out string
	cmd := &cobra.Command{
		Use:   "open <calendar-id> <message-id>",
		Short: "Write a decrypted attachment or voice clip to disk",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withReader(cmd.Context(), func(ctx context.Context, a *app) error {
				msgs, err := a.svc.Messaging().Messages(ctx, args[0])
				if err != nil {
					return err
				}
				for _, msg := range msgs {
					if msg.ID != args[1] {
						continue
					}
					var data []byte
					name := msg.ID
					if msg.Kind == model.PayloadVoice {
						data, err = a.svc.Messaging().VoiceAudio(msg)
					} else {
						data, err = a.svc.Messaging().OpenAttachment(msg)
						if msg.Attachment != nil {
							name = msg.Attachment.FileName
						}
					}
					if err != nil {
						return err
					}
					if out == "" {
						out = name
					}
					if err := os.WriteFile(out, data, 0o600); err != nil {
						return err
					}
					fmt.Printf("wrote %s (%d bytes)\n", out, len(data))
					return nil
				}
				return fmt.Errorf("message %s not found in %s", args[1], args[0])
			})
		},
	}
	cmd.Flags().StringVarP(&out, "out", "o", "", "output path (default: original file name)")
	return cmd
}

func chatClearCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "clear <calendar-id>",
		Short: "Delete every message in a conversation",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(ctx context.Context, a *app) error {
				if err := a.svc.ClearConversation(ctx, args[0]); err != nil {
					return err
				}
				fmt.Printf("cleared %s\n", args[0])
				return nil
			})
		},
	}
}

func transcript(list []messaging.Decrypted) []views.TranscriptLine {
	lines := make([]views.TranscriptLine, 0, len(list))
	for _, d := range list {
		line := views.TranscriptLine{
			Sender: d.Message.SenderEmail,
			At:     d.Message.Timestamp.Local().Format("Jan 2 15:04"),
			Text:   d.Text,
			Failed: d.Failed,
		}
		if v := d.Message.Voice; v != nil {
			line.Voice = true
			line.Text = fmt.Sprintf("voice clip, %s", (time.Duration(v.DurationMs) * time.Millisecond).Round(time.Second))
		}
		if at := d.Message.Attachment; at != nil {
			line.Attachment = fmt.Sprintf("%s (%d B)", at.FileName, at.Size)
		}
		lines = append(lines, line)
	}
	return lines
}
