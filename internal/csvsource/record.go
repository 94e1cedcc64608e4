package csvsource

// Header is the exact header line every CSV shard must start with.
const Header = "date,time,area,residence,age,gender,population"

// Record is one validated row of the population CSV format: date and time
// are the decimal calendar components that combine with a Calendar to
// produce an hour-index, area is the mesh key, and Population is the cell
// value to write. Residence, Age, and Gender are carried through for
// parity with the source format but are sentinel -1 in the supported
// flavor and are never used as keys.
type Record struct {
	Date       uint32
	Time       uint16
	Area       uint64
	Residence  int32
	Age        int32
	Gender     int32
	Population int32
}
