// Package planner parses the server-rendered HTML of the itslearning
// course planner: the topic overview of Planner.aspx and the plan grid
// fragments returned by the planner REST endpoint.
//
// The markup is not versioned by the portal, so every selector is kept
// narrow and every extraction degrades per-field: a topic with a
// mangled date block still yields an entry, with the broken fields set
// to their sentinels.
package planner

import (
	"context"
	"strings"
	"time"

	"itsdu-backend/lib/htmlutil"
	"itsdu-backend/lib/timezone"

	"github.com/PuerkitoBio/goquery"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

var tracer = otel.Tracer("scrapers/itslearning/planner")

// UnknownPlanCount marks a topic whose rendered plan count could not be
// read. It is distinct from zero, which means the topic really is empty.
const UnknownPlanCount = -1

// topicDateLayout is the day-month-year form of the topic header,
// "from 24-10-2023 to 31-10-2023".
const topicDateLayout = "02-01-2006"

// CoursePlanEntry is one expandable topic on a course's planner page.
type CoursePlanEntry struct {
	TopicID    string
	Title      string
	PlansCount int
	Dates      DateRange

	// Attributes carries every attribute of the topic node so callers
	// can reach portal data the typed fields do not cover.
	Attributes map[string]string
}

// ResourceActivity is one attached element inside a plan row.
type ResourceActivity struct {
	PlanID         string
	ElementID      string
	ParentFolderID string
	Title          string
	Link           string
	ImageURL       string
}

// PlanGridRow is one plan inside an expanded topic.
type PlanGridRow struct {
	Title       string
	Date        DateRange
	Description string
	Resources   []ResourceActivity
}

// ParseCourseTopics extracts the topic list from a rendered planner
// page.
func ParseCourseTopics(ctx context.Context, html string) ([]CoursePlanEntry, error) {
	_, span := tracer.Start(ctx, "ParseCourseTopics")
	defer span.End()

	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to parse planner html")
		return nil, err
	}

	var entries []CoursePlanEntry
	doc.Find(".itsl-topic").Each(func(_ int, topic *goquery.Selection) {
		entry := CoursePlanEntry{
			PlansCount: UnknownPlanCount,
			Attributes: map[string]string{},
		}
		for _, attr := range topic.Nodes[0].Attr {
			entry.Attributes[attr.Key] = attr.Val
		}
		entry.TopicID = entry.Attributes["data-topic-id"]
		entry.Title = htmlutil.CleanText(topic.Find(".itsl-topic-title span").First().Text())

		expander := topic.Find(".itsl-topic-expander")
		entry.PlansCount = parsePlanCount(
			htmlutil.CleanText(expander.Find(".itsl-topic-expanded-text").First().Text()),
		)
		entry.Dates = parseTopicDates(
			htmlutil.CleanText(expander.Find(".itsl-topic-dates").First().Text()),
		)

		entries = append(entries, entry)
	})

	span.SetAttributes(attribute.Int("topics", len(entries)))
	return entries, nil
}

// parsePlanCount reads the leading digits of a label like "3 plans".
func parsePlanCount(text string) int {
	fields := strings.Split(text, " ")
	if len(fields) == 0 {
		return UnknownPlanCount
	}

	count := 0
	digits := 0
	for _, r := range fields[0] {
		if r < '0' || r > '9' {
			break
		}
		count = count*10 + int(r-'0')
		digits++
	}
	if digits == 0 {
		return UnknownPlanCount
	}
	return count
}

// parseTopicDates reads a header like "from 24-10-2023 to 31-10-2023".
func parseTopicDates(text string) DateRange {
	fields := strings.Split(text, " ")
	if len(fields) < 4 {
		return DateRange{}
	}
	from, err := time.ParseInLocation(topicDateLayout, fields[1], timezone.Location)
	if err != nil {
		return DateRange{}
	}
	to, err := time.ParseInLocation(topicDateLayout, fields[3], timezone.Location)
	if err != nil {
		return DateRange{}
	}
	return DateRange{From: &from, To: &to}
}

// ParseGridRows extracts plan rows from a planner grid fragment, the
// HTML the plan endpoint returns for an expanded topic.
func ParseGridRows(ctx context.Context, html string) ([]PlanGridRow, error) {
	_, span := tracer.Start(ctx, "ParseGridRows")
	defer span.End()

	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to parse grid html")
		return nil, err
	}

	var rows []PlanGridRow
	doc.Find(".gridrow").Each(func(_ int, node *goquery.Selection) {
		row := PlanGridRow{
			Title: htmlutil.CleanText(
				node.Find(".itsl-planner-min-title-width .itsl-plan-title-label").First().Text(),
			),
			Date: ParseDateRange(htmlutil.CleanText(
				node.Find(".itsl-plan-date .itsl-inline-date-picker-view").First().Text(),
			)),
			Description: parseDescription(htmlutil.CleanText(
				node.Find(".itsl-planner-htmltext-viewer").First().Text(),
			)),
		}

		node.Find(".itsl-plan-elements-item").Each(func(_ int, item *goquery.Selection) {
			activity := ResourceActivity{
				PlanID:         item.AttrOr("data-plan-id", ""),
				ElementID:      item.AttrOr("data-element-id", ""),
				ParentFolderID: item.AttrOr("data-parent-folder-id", ""),
				Title:          htmlutil.CleanText(item.Find("span").First().Text()),
				Link:           item.Find("a.itsl-plan-elements-item-link").First().AttrOr("href", ""),
				ImageURL:       item.Find("img").First().AttrOr("src", ""),
			}
			row.Resources = append(row.Resources, activity)
		})

		rows = append(rows, row)
	})

	span.SetAttributes(attribute.Int("rows", len(rows)))
	return rows, nil
}

// parseDescription maps the portal's empty-description placeholder to
// an actually empty string.
func parseDescription(text string) string {
	if text == "-" {
		return ""
	}
	return text
}
