package notification

import (
	"fmt"
	"strings"
	"time"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/tphakala/birdnet-notifier/internal/datastore"
	"github.com/tphakala/birdnet-notifier/internal/imageprovider"
	"github.com/tphakala/birdnet-notifier/internal/novelty"
)

// defaultFooter is used when no node name is configured.
const defaultFooter = "BirdNET-Notifier"

// newSpeciesCap bounds the new-for-the-period list in summary embeds.
const newSpeciesCap = 10

var seasonCaser = cases.Title(language.English)

// DetectionEmbedOptions carries optional context for rendering a
// detection alert. All fields may be left zero.
type DetectionEmbedOptions struct {
	Image         *imageprovider.BirdImage // species thumbnail, nil when unavailable
	SunAnnotation string                   // for example "32 min after sunrise"
	TimeAs24h     bool
	NodeName      string
}

// DetectionEmbed renders a detection alert. Novel detections get the
// gold new-species form with one reason line per novelty flag; plain
// detections render in the compact blue form.
func DetectionEmbed(result *novelty.Result, opts *DetectionEmbedOptions) *Embed {
	if opts == nil {
		opts = &DetectionEmbedOptions{}
	}

	timeValue := result.Time.Format(clockFormat(opts.TimeAs24h))
	if opts.SunAnnotation != "" {
		timeValue += fmt.Sprintf(" (%s)", opts.SunAnnotation)
	}
	confidence := fmt.Sprintf("%.0f%%", result.Note.Confidence*100)

	var embed *Embed
	if result.IsNovel() {
		details := fmt.Sprintf("**%s**\nConfidence: %s\nTime: %s",
			strings.Join(flagLines(result), "\n"), confidence, timeValue)
		embed = &Embed{
			Title: "NEW SPECIES: " + result.Note.CommonName,
			Color: ColorNewSpecies,
			Fields: []EmbedField{
				{Name: result.Note.CommonName, Value: fmt.Sprintf("*%s*", result.Note.ScientificName)},
				{Name: "Details", Value: details},
			},
		}
	} else {
		embed = &Embed{
			Title:       result.Note.CommonName,
			Description: fmt.Sprintf("*%s*", result.Note.ScientificName),
			Color:       ColorDetection,
			Fields: []EmbedField{
				{Name: "Confidence", Value: confidence, Inline: true},
				{Name: "Time", Value: timeValue, Inline: true},
			},
		}
	}

	embed.Timestamp = result.Time.Format(time.RFC3339)
	embed.Footer = &EmbedFooter{Text: footerText(opts.NodeName, opts.Image)}
	if opts.Image != nil && opts.Image.URL != "" {
		embed.Thumbnail = &EmbedThumbnail{URL: opts.Image.URL}
	}
	return embed
}

// flagLines converts novelty flags into the reason lines shown in the
// alert. A detection carrying several flags lists them all.
func flagLines(result *novelty.Result) []string {
	lines := make([]string, 0, len(result.Flags))
	for _, flag := range result.Flags {
		switch flag {
		case novelty.FirstEver:
			lines = append(lines, "First ever sighting!")
		case novelty.FirstOfYear:
			lines = append(lines, fmt.Sprintf("First sighting of %d!", result.Time.Year()))
		case novelty.FirstOfSeason:
			lines = append(lines, fmt.Sprintf("First sighting of %s!", seasonCaser.String(result.Season)))
		}
	}
	return lines
}

// SummaryEmbedOptions carries optional context for rendering a summary
// report.
type SummaryEmbedOptions struct {
	TopImage *imageprovider.BirdImage // thumbnail for the most detected species
	NodeName string
}

// SummaryEmbed renders a summary report for the window described by
// data. The title derives from the lookback duration, the species list
// is capped by what the store returned, and a peak-activity line is
// added when the hourly breakdown has a clear maximum.
func SummaryEmbed(data *datastore.SummaryData, lookback time.Duration, opts *SummaryEmbedOptions) *Embed {
	if opts == nil {
		opts = &SummaryEmbedOptions{}
	}

	embed := &Embed{
		Title:       summaryTitle(lookback),
		Description: fmt.Sprintf("**%s**", summaryPeriod(data.End, lookback)),
		Color:       ColorSummary,
		Timestamp:   data.End.Format(time.RFC3339),
		Footer:      &EmbedFooter{Text: footerText(opts.NodeName, opts.TopImage)},
	}

	if data.TotalDetections == 0 {
		embed.Fields = []EmbedField{
			{Name: "No Detections", Value: "No birds were detected during this period."},
		}
		return embed
	}

	embed.Fields = []EmbedField{
		{Name: "Summary", Value: fmt.Sprintf("**%d** detections | **%d** species",
			data.TotalDetections, data.SpeciesCount)},
	}

	if list := speciesList(data.TopSpecies, data.SpeciesCount); list != "" {
		name := "Species"
		if len(data.TopSpecies) > 5 {
			name = "Top Species"
		}
		embed.Fields = append(embed.Fields, EmbedField{Name: name, Value: list})
	}

	if peak := peakActivity(data.HourlyCounts); peak != "" {
		embed.Fields = append(embed.Fields, EmbedField{Name: "Peak Activity", Value: peak})
	}

	if newSpecies := newSpeciesList(data.NewSpecies); newSpecies != "" {
		embed.Fields = append(embed.Fields, EmbedField{Name: "New Species", Value: newSpecies})
	}

	if opts.TopImage != nil && opts.TopImage.URL != "" {
		embed.Thumbnail = &EmbedThumbnail{URL: opts.TopImage.URL}
	}
	return embed
}

// TestEmbed renders the message sent by the notify --test command.
func TestEmbed(nodeName string) *Embed {
	node := nodeName
	if node == "" {
		node = defaultFooter
	}
	return &Embed{
		Title:       "Test Notification",
		Description: fmt.Sprintf("Test message from %s. If you can read this, notifications are working.", node),
		Color:       ColorTest,
		Timestamp:   time.Now().Format(time.RFC3339),
		Footer:      &EmbedFooter{Text: footerText(nodeName, nil)},
	}
}

// ErrorEmbed renders an operational error message.
func ErrorEmbed(title, message, nodeName string) *Embed {
	return &Embed{
		Title:       title,
		Description: message,
		Color:       ColorError,
		Timestamp:   time.Now().Format(time.RFC3339),
		Footer:      &EmbedFooter{Text: footerText(nodeName, nil)},
	}
}

// SystemEmbed renders a host resource alert. Critical alerts use the
// error color, warnings and recoveries the warning color.
func SystemEmbed(title, message, nodeName string, critical bool) *Embed {
	color := ColorWarning
	if critical {
		color = ColorError
	}
	return &Embed{
		Title:       title,
		Description: message,
		Color:       color,
		Timestamp:   time.Now().Format(time.RFC3339),
		Footer:      &EmbedFooter{Text: footerText(nodeName, nil)},
	}
}

// summaryTitle derives the report title from the lookback duration.
func summaryTitle(lookback time.Duration) string {
	minutes := int(lookback.Minutes())
	switch {
	case minutes <= 60:
		return "Hourly Bird Report"
	case minutes <= 1440:
		return "Daily Bird Report"
	default:
		return fmt.Sprintf("%d-Day Bird Report", minutes/1440)
	}
}

// summaryPeriod formats the human readable period line under the title.
// Hourly reports show the hour the window closed at, longer reports the
// closing date.
func summaryPeriod(end time.Time, lookback time.Duration) string {
	if lookback.Minutes() <= 60 {
		return end.Format("3:04 PM")
	}
	return end.Format("Jan 2, 2006")
}

// speciesList renders the numbered top-species list. When the store
// returned fewer species than the window held, a trailing line counts
// the rest.
func speciesList(top []datastore.SpeciesTally, totalSpecies int64) string {
	if len(top) == 0 {
		return ""
	}
	lines := make([]string, 0, len(top)+1)
	for i, tally := range top {
		lines = append(lines, fmt.Sprintf("%d. **%s** (%d)", i+1, tally.CommonName, tally.Count))
	}
	if remaining := int(totalSpecies) - len(top); remaining > 0 {
		lines = append(lines, fmt.Sprintf("*...and %d more species*", remaining))
	}
	return strings.Join(lines, "\n")
}

// newSpeciesList renders species first recorded inside the window.
func newSpeciesList(newSpecies []datastore.SpeciesTally) string {
	if len(newSpecies) == 0 {
		return ""
	}
	names := make([]string, 0, len(newSpecies))
	for i, tally := range newSpecies {
		if i == newSpeciesCap {
			names = append(names, fmt.Sprintf("+%d more", len(newSpecies)-newSpeciesCap))
			break
		}
		names = append(names, fmt.Sprintf("**%s**", tally.CommonName))
	}
	return strings.Join(names, ", ")
}

// peakActivity finds the hours carrying at least 75% of the busiest
// hour's detections and formats them as 12-hour ranges, consecutive
// hours grouped. Returns an empty string when the window saw nothing.
func peakActivity(hourly [24]int) string {
	maxCount := 0
	for _, count := range hourly {
		if count > maxCount {
			maxCount = count
		}
	}
	if maxCount == 0 {
		return ""
	}

	threshold := 0.75 * float64(maxCount)
	var peaks []int
	for hour, count := range hourly {
		if count > 0 && float64(count) >= threshold {
			peaks = append(peaks, hour)
		}
	}

	var ranges []string
	start, end := peaks[0], peaks[0]
	flush := func() {
		if start == end {
			ranges = append(ranges, hourLabel(start))
		} else {
			ranges = append(ranges, fmt.Sprintf("%s-%s", hourLabel(start), hourLabel(end+1)))
		}
	}
	for _, hour := range peaks[1:] {
		if hour == end+1 {
			end = hour
			continue
		}
		flush()
		start, end = hour, hour
	}
	flush()
	return strings.Join(ranges, ", ")
}

// hourLabel formats an hour of day on the 12-hour clock. Hour 24 is the
// exclusive end of a range reaching midnight.
func hourLabel(hour int) string {
	switch {
	case hour == 0 || hour == 24:
		return "12 AM"
	case hour < 12:
		return fmt.Sprintf("%d AM", hour)
	case hour == 12:
		return "12 PM"
	default:
		return fmt.Sprintf("%d PM", hour-12)
	}
}

// clockFormat returns the time layout matching the configured clock.
func clockFormat(as24h bool) string {
	if as24h {
		return "15:04"
	}
	return "3:04 PM"
}

// DetectionText renders the plain-text fallback for providers without
// embed support.
func DetectionText(result *novelty.Result, opts *DetectionEmbedOptions) (title, message string) {
	if opts == nil {
		opts = &DetectionEmbedOptions{}
	}

	timeValue := result.Time.Format(clockFormat(opts.TimeAs24h))
	if opts.SunAnnotation != "" {
		timeValue += fmt.Sprintf(" (%s)", opts.SunAnnotation)
	}

	var lines []string
	if result.IsNovel() {
		title = "NEW SPECIES: " + result.Note.CommonName
		lines = append(lines, flagLines(result)...)
	} else {
		title = result.Note.CommonName
	}
	lines = append(lines,
		result.Note.ScientificName,
		fmt.Sprintf("Confidence: %.0f%%", result.Note.Confidence*100),
		fmt.Sprintf("Time: %s", timeValue))
	return title, strings.Join(lines, "\n")
}

// SummaryText renders the plain-text fallback of a summary report.
func SummaryText(data *datastore.SummaryData, lookback time.Duration) (title, message string) {
	title = summaryTitle(lookback)
	if data.TotalDetections == 0 {
		return title, "No birds were detected during this period."
	}

	lines := []string{
		fmt.Sprintf("%d detections of %d species", data.TotalDetections, data.SpeciesCount),
	}
	for i, tally := range data.TopSpecies {
		lines = append(lines, fmt.Sprintf("%d. %s (%d)", i+1, tally.CommonName, tally.Count))
	}
	if remaining := int(data.SpeciesCount) - len(data.TopSpecies); remaining > 0 && len(data.TopSpecies) > 0 {
		lines = append(lines, fmt.Sprintf("...and %d more species", remaining))
	}
	if peak := peakActivity(data.HourlyCounts); peak != "" {
		lines = append(lines, "Peak activity: "+peak)
	}
	return title, strings.Join(lines, "\n")
}

// footerText combines the node name with image attribution when a
// thumbnail is shown.
func footerText(nodeName string, img *imageprovider.BirdImage) string {
	text := nodeName
	if text == "" {
		text = defaultFooter
	}
	if img != nil {
		if attribution := img.Attribution(); attribution != "" {
			text += " • " + attribution
		}
	}
	return text
}
