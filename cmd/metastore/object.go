package main

import (
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/tagforge/metastore/internal/timeparsing"
	"github.com/tagforge/metastore/internal/types"
	"github.com/tagforge/metastore/internal/ui"
)

var objectCmd = &cobra.Command{
	Use:   "object",
	Short: "Inspect stored objects",
}

var (
	showVersion    int
	showAsOf       string
	showTagVersion int
)

var objectShowCmd = &cobra.Command{
	Use:   "show <type> <id>",
	Short: "Show one object version with its tag",
	Long: `Show one object version with its tag.

By default the latest version is shown. --version selects an explicit
version; --as-of selects the version valid at a point in time, given as
RFC3339, a date, a compact offset (-2d, -6h) or natural language
("yesterday", "last monday").`,
	Args: cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		tenant, err := tenantArg()
		if err != nil {
			return err
		}

		id, err := uuid.Parse(args[1])
		if err != nil {
			return fmt.Errorf("invalid object id %q: %w", args[1], err)
		}

		sel := types.TagSelector{
			ObjectType: types.ObjectType(args[0]),
			ObjectID:   id,
			Object:     types.ByLatest(),
			Tag:        types.ByLatest(),
		}
		if showVersion > 0 && showAsOf != "" {
			return fmt.Errorf("--version and --as-of are mutually exclusive")
		}
		if showVersion > 0 {
			sel.Object = types.ByVersion(showVersion)
		}
		if showAsOf != "" {
			at, err := timeparsing.ParseAsOf(showAsOf, time.Now())
			if err != nil {
				return err
			}
			sel.Object = types.ByAsOf(at)
			sel.Tag = types.ByAsOf(at)
		}
		if showTagVersion > 0 {
			sel.Tag = types.ByVersion(showTagVersion)
		}

		if err := openStore(ctx); err != nil {
			return err
		}
		defer closeStore()

		tag, err := store.LoadObject(ctx, tenant, sel)
		if err != nil {
			return err
		}
		printTag(tag)
		return nil
	},
}

func printTag(tag *types.Tag) {
	h := tag.Header
	fmt.Println(ui.HeaderStyle.Render(fmt.Sprintf("%s %s", h.ObjectType, h.ObjectID)))
	fmt.Printf("  object version %d (%s)%s\n",
		h.ObjectVersion, h.ObjectTimestamp.Format(time.RFC3339), latestMarker(h.IsLatestObject))
	fmt.Printf("  tag version    %d (%s)%s\n",
		h.TagVersion, h.TagTimestamp.Format(time.RFC3339), latestMarker(h.IsLatestTag))
	fmt.Printf("  payload        %d bytes\n", len(tag.Payload))

	if len(tag.Attrs) == 0 {
		return
	}
	names := make([]string, 0, len(tag.Attrs))
	for name := range tag.Attrs {
		names = append(names, name)
	}
	sort.Strings(names)

	rows := make([][]string, len(names))
	for i, name := range names {
		v := tag.Attrs[name]
		rows[i] = []string{name, string(v.Type), v.String()}
	}
	fmt.Print(ui.Table([]string{"ATTR", "TYPE", "VALUE"}, rows))
}

func latestMarker(latest bool) string {
	if latest {
		return " " + ui.RenderMuted("[latest]")
	}
	return ""
}

func init() {
	objectShowCmd.Flags().IntVar(&showVersion, "version", 0, "explicit object version")
	objectShowCmd.Flags().StringVar(&showAsOf, "as-of", "", "point in time to resolve the version at")
	objectShowCmd.Flags().IntVar(&showTagVersion, "tag-version", 0, "explicit tag version")
	objectCmd.AddCommand(objectShowCmd)
	rootCmd.AddCommand(objectCmd)
}
