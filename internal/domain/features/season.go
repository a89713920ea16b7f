package features

import "time"

// Season is the release-window bucket a month falls into.
type Season string

// Season buckets.
const (
	SeasonDumpMonths        Season = "Dump_Months"
	SeasonHolidaySeason     Season = "Holiday_Season"
	SeasonSpringFall        Season = "Spring_Fall"
	SeasonSummerBlockbuster Season = "Summer_Blockbuster"
)

// Seasons lists every bucket in schema order.
var Seasons = []Season{SeasonDumpMonths, SeasonHolidaySeason, SeasonSpringFall, SeasonSummerBlockbuster}

var seasonByMonth = [13]Season{
	time.January:   SeasonDumpMonths,
	time.February:  SeasonDumpMonths,
	time.March:     SeasonSpringFall,
	time.April:     SeasonSpringFall,
	time.May:       SeasonSummerBlockbuster,
	time.June:      SeasonSummerBlockbuster,
	time.July:      SeasonSummerBlockbuster,
	time.August:    SeasonDumpMonths,
	time.September: SeasonDumpMonths,
	time.October:   SeasonSpringFall,
	time.November:  SeasonHolidaySeason,
	time.December:  SeasonHolidaySeason,
}

// SeasonOf maps every calendar month to exactly one bucket.
func SeasonOf(m time.Month) Season {
	if m < time.January || m > time.December {
		return SeasonDumpMonths
	}
	return seasonByMonth[m]
}
