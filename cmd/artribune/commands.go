package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/url"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/kalambet/artribune/internal/config"
	"github.com/kalambet/artribune/internal/query"
)

// --- search ---

var searchCmd = &cobra.Command{
	Use:   "search <query>",
	Short: "Search articles on a running server",
	Long: `Search articles on a running server.

Examples:
  artribune search "Maurizio Cattelan"
  artribune search --mode hybrid --limit 5 "biennale di venezia"
  artribune search --mode entity --type venue "Tate Modern"`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		mode, _ := cmd.Flags().GetString("mode")
		limit, _ := cmd.Flags().GetInt("limit")
		entityType, _ := cmd.Flags().GetString("type")
		text := strings.Join(args, " ")

		m, err := query.ParseMode(mode)
		if err != nil {
			return err
		}

		client, err := newAPIClient()
		if err != nil {
			return err
		}
		ctx := cmd.Context()

		if m == query.ModeEntity {
			body, _ := json.Marshal(map[string]any{"entity_name": text, "entity_type": entityType, "limit": limit})
			resp, err := client.post(ctx, "/mcp/search_by_entity", bytes.NewReader(body))
			if err != nil {
				return err
			}
			var out query.EntityArticles
			if err := decodeJSON(resp, &out); err != nil {
				return err
			}
			printEntityArticles(cmd.OutOrStdout(), &out)
			return nil
		}

		params := url.Values{"query": {text}, "limit": {strconv.Itoa(limit)}}
		resp, err := client.get(ctx, "/search/"+string(m)+"?"+params.Encode())
		if err != nil {
			return err
		}
		var out query.SearchResponse
		if err := decodeJSON(resp, &out); err != nil {
			return err
		}
		printSearch(cmd.OutOrStdout(), &out)
		return nil
	},
}

func init() {
	searchCmd.Flags().String("mode", "database", "database, semantic, hybrid or entity")
	searchCmd.Flags().Int("limit", 10, "maximum number of results")
	searchCmd.Flags().String("type", "", "entity type for --mode entity (artist, venue, event, ...)")
}

func printSearch(w io.Writer, r *query.SearchResponse) {
	fmt.Fprintf(w, "%s results for %q (%s)\n", labelColor.Sprint(r.TotalResults), r.Query, r.Mode)
	if r.Degraded {
		warnColor.Fprintf(w, "⚠ degraded: %s unavailable\n", strings.Join(r.DegradedSources, ", "))
	}
	for i, h := range r.Results {
		date := "undated"
		if h.PublishedAt != nil {
			date = h.PublishedAt.Format("2006-01-02")
		}
		fmt.Fprintf(w, "%2d. %s %s\n", i+1, labelColor.Sprint(h.Title), dimColor.Sprintf("[%d, %s, %.3f]", h.ArticleID, date, h.Score))
		if h.URL != "" {
			fmt.Fprintf(w, "    %s\n", h.URL)
		}
	}
}

func printEntityArticles(w io.Writer, r *query.EntityArticles) {
	fmt.Fprintf(w, "%s of %d linked articles for %q\n", labelColor.Sprint(r.TotalResults), r.TotalLinked, r.EntityName)
	for i, a := range r.Articles {
		fmt.Fprintf(w, "%2d. %s %s\n", i+1, labelColor.Sprint(a.Title), dimColor.Sprintf("[%d]", a.ID))
	}
}

// --- profile ---

var profileCmd = &cobra.Command{
	Use:   "profile <name>",
	Short: "Show the relationship profile of an artist or venue",
	Long: `Show the relationship profile of an artist or venue.

Examples:
  artribune profile "Damien Hirst"
  artribune profile --venue "Palazzo Grassi"`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		venue, _ := cmd.Flags().GetBool("venue")
		limit, _ := cmd.Flags().GetInt("limit")
		name := strings.Join(args, " ")

		client, err := newAPIClient()
		if err != nil {
			return err
		}

		path, param := "/mcp/get_artist_profile", "artist_name"
		if venue {
			path, param = "/mcp/get_venue_profile", "venue_name"
		}
		params := url.Values{param: {name}}
		if limit > 0 {
			params.Set("limit", strconv.Itoa(limit))
		}
		resp, err := client.post(cmd.Context(), path+"?"+params.Encode(), nil)
		if err != nil {
			return err
		}

		if venue {
			var p query.VenueProfile
			if err := decodeJSON(resp, &p); err != nil {
				return err
			}
			printVenueProfile(cmd.OutOrStdout(), &p)
			return nil
		}
		var p query.ArtistProfile
		if err := decodeJSON(resp, &p); err != nil {
			return err
		}
		printArtistProfile(cmd.OutOrStdout(), &p)
		return nil
	},
}

func init() {
	profileCmd.Flags().Bool("venue", false, "treat the name as a venue")
	profileCmd.Flags().Int("limit", 0, "number of articles to analyse (server default when 0)")
}

func printArtistProfile(w io.Writer, p *query.ArtistProfile) {
	fmt.Fprintf(w, "%s (%d articles)\n", labelColor.Sprint(p.ArtistName), p.TotalArticles)
	printStatus(w, "Venues", "%s", joinOrNone(p.Venues))
	printStatus(w, "Collaborators", "%s", joinOrNone(p.Collaborators))
	printStatus(w, "Exhibitions/events", "%s", joinOrNone(p.ExhibitionsEvents))
	for _, a := range p.Articles {
		fmt.Fprintf(w, "    - %s %s\n", a.Title, dimColor.Sprintf("[%d]", a.ID))
	}
}

func printVenueProfile(w io.Writer, p *query.VenueProfile) {
	fmt.Fprintf(w, "%s (%d articles)\n", labelColor.Sprint(p.VenueName), p.TotalArticles)
	printStatus(w, "Featured artists", "%s", joinOrNone(p.FeaturedArtists))
	printStatus(w, "Events/exhibitions", "%s", joinOrNone(p.EventsExhibitions))
	for _, a := range p.Articles {
		fmt.Fprintf(w, "    - %s %s\n", a.Title, dimColor.Sprintf("[%d]", a.ID))
	}
}

func joinOrNone(names []string) string {
	if len(names) == 0 {
		return "(none)"
	}
	return strings.Join(names, ", ")
}

// --- article ---

var articleCmd = &cobra.Command{
	Use:   "article <id>",
	Short: "Print one article as JSON",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := query.ParseArticleID(args[0])
		if err != nil {
			return err
		}
		withEntities, _ := cmd.Flags().GetBool("entities")

		client, err := newAPIClient()
		if err != nil {
			return err
		}
		path := "/article/" + strconv.FormatInt(id, 10)
		if withEntities {
			path += "/entities"
		}
		resp, err := client.get(cmd.Context(), path)
		if err != nil {
			return err
		}
		var out json.RawMessage
		if err := decodeJSON(resp, &out); err != nil {
			return err
		}
		var pretty bytes.Buffer
		if err := json.Indent(&pretty, out, "", "  "); err != nil {
			return err
		}
		pretty.WriteByte('\n')
		_, err = pretty.WriteTo(cmd.OutOrStdout())
		return err
	},
}

func init() {
	articleCmd.Flags().Bool("entities", false, "show the article's entities instead of the record")
}

// --- config ---

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Show or update configuration",
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show current configuration",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load()
		if err != nil {
			return err
		}

		for _, k := range config.ShowAll(cfg) {
			fmt.Fprintf(cmd.OutOrStdout(), "  %s = %s %s\n", labelColor.Sprint(k.Key), k.Value, dimColor.Sprint("($"+k.EnvVar+")"))
		}
		return nil
	},
}

var configSetCmd = &cobra.Command{
	Use:   "set <key> <value>",
	Short: "Set a configuration value",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		key, value := args[0], args[1]

		if err := config.SetKey(key, value); err != nil {
			return err
		}

		printSuccess("Set %s = %s", key, value)
		return nil
	},
}

func init() {
	configCmd.AddCommand(configShowCmd)
	configCmd.AddCommand(configSetCmd)
}
