package fat32

import "time"

// toFATTime packs a time.Time into the FAT directory-entry date/time
// triple: a 16-bit date (year-1980<<9 | month<<5 | day), a 16-bit time
// (hour<<11 | minute<<5 | second/2), and a tenth-of-a-second byte in the
// range 0..199 (hundredths of a second) that recovers both the second's
// odd remainder (the >=100 range) dropped by clock's 2-second field and
// sub-second precision finer than that.
func toFATTime(t time.Time) (date, clock uint16, tenth uint8) {
	year := t.Year()
	if year < 1980 {
		year = 1980
	}
	date = uint16((year-1980)<<9 | int(t.Month())<<5 | t.Day())
	clock = uint16(t.Hour()<<11 | t.Minute()<<5 | t.Second()/2)
	tenth = uint8((t.Second()%2)*100 + t.Nanosecond()/10_000_000)
	return date, clock, tenth
}

// fromFATTime reverses toFATTime, reconstructing a time.Time in UTC. FAT
// has no timezone concept; callers that need local time apply it
// themselves.
func fromFATTime(date, clock uint16, tenth uint8) time.Time {
	year := 1980 + int(date>>9)
	month := time.Month((date >> 5) & 0xF)
	day := int(date & 0x1F)
	hour := int(clock >> 11)
	min := int((clock >> 5) & 0x3F)
	sec := int(clock&0x1F)*2 + int(tenth)/100
	nsec := (int(tenth) % 100) * 10_000_000
	return time.Date(year, month, day, hour, min, sec, nsec, time.UTC)
}
