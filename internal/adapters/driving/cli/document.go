package cli

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/custodia-labs/sercha-rank/internal/core/domain"
)

var documentCmd = &cobra.Command{
	Use:   "document",
	Short: "Inspect notes in the vault",
	Long:  `View note metadata and content, and record that a note was read.`,
}

var documentGetCmd = &cobra.Command{
	Use:   "get [doc-id]",
	Short: "Show document info",
	Args:  cobra.ExactArgs(1),
	RunE:  runDocumentGet,
}

var documentContentCmd = &cobra.Command{
	Use:   "content [doc-id]",
	Short: "Print document content",
	Args:  cobra.ExactArgs(1),
	RunE:  runDocumentContent,
}

var documentAccessCmd = &cobra.Command{
	Use:   "access [doc-id]",
	Short: "Record that a document was opened",
	Long: `Records an access for the usage signal. Frequently and recently opened notes
rank higher; a very short dwell counts as a bounce.`,
	Args: cobra.ExactArgs(1),
	RunE: runDocumentAccess,
}

// accessDwell is a flag for the access command.
var accessDwell time.Duration

func init() {
	documentAccessCmd.Flags().DurationVarP(&accessDwell, "dwell", "d", 0, "time spent reading the note (0 = unknown)")

	documentCmd.AddCommand(documentGetCmd)
	documentCmd.AddCommand(documentContentCmd)
	documentCmd.AddCommand(documentAccessCmd)
	rootCmd.AddCommand(documentCmd)
}

func runDocumentGet(cmd *cobra.Command, args []string) error {
	if documentReader == nil {
		return errors.New("document service not configured")
	}

	doc, err := documentReader.Get(cmd.Context(), args[0])
	if err != nil {
		return fmt.Errorf("failed to get document: %w", err)
	}

	md := doc.Metadata
	cmd.Printf("ID:       %s\n", doc.ID)
	cmd.Printf("Title:    %s\n", doc.DisplayTitle())
	cmd.Printf("Modified: %s\n", doc.ModifiedAt.Format(time.RFC3339))
	cmd.Printf("Size:     %d bytes\n", doc.Size)
	if len(md.Tags) > 0 {
		cmd.Printf("Tags:     %s\n", strings.Join(md.Tags.Sorted(), ", "))
	}
	if len(md.Aliases) > 0 {
		cmd.Printf("Aliases:  %s\n", strings.Join(md.Aliases, ", "))
	}
	if len(md.Links) > 0 {
		cmd.Println("Links:")
		for _, l := range md.Links {
			cmd.Printf("  -> %s\n", l.Target)
		}
	}
	if graphService != nil {
		cmd.Printf("Importance: %.3f\n", graphService.Score(doc.ID))
	}
	return nil
}

func runDocumentContent(cmd *cobra.Command, args []string) error {
	if documentReader == nil {
		return errors.New("document service not configured")
	}

	doc, err := documentReader.Get(cmd.Context(), args[0])
	if err != nil {
		return fmt.Errorf("failed to get content: %w", err)
	}

	cmd.Println(doc.Content)
	return nil
}

func runDocumentAccess(cmd *cobra.Command, args []string) error {
	if usageService == nil {
		return errors.New("usage service not configured")
	}
	if accessDwell < 0 {
		return fmt.Errorf("%w: dwell must not be negative", domain.ErrInvalidInput)
	}

	if err := usageService.RecordAccess(cmd.Context(), args[0], accessDwell); err != nil {
		return fmt.Errorf("failed to record access: %w", err)
	}

	cmd.Printf("Recorded access to %s\n", args[0])
	return nil
}
