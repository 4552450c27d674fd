package table

// Stats accumulates byte and record counts across every table a Logger
// has finished, per spec §4.D: "running totals of data/index/meta/filter
// bytes written (both raw contents and final with padding/trailers),
// and raw key/value byte totals."
type Stats struct {
	DataBytesRaw   uint64
	DataBytesFinal uint64

	IndexBytesRaw   uint64
	IndexBytesFinal uint64

	MetaBytesRaw   uint64
	MetaBytesFinal uint64

	FilterBytesRaw   uint64
	FilterBytesFinal uint64

	KeyBytesRaw   uint64
	ValueBytesRaw uint64

	NumTables uint64
	NumEpochs uint64
}

// Add accumulates other into s, so per-shard Stats can be summed into
// one total. Sharded does not aggregate its shards' Stats itself.
func (s *Stats) Add(other Stats) {
	s.DataBytesRaw += other.DataBytesRaw
	s.DataBytesFinal += other.DataBytesFinal
	s.IndexBytesRaw += other.IndexBytesRaw
	s.IndexBytesFinal += other.IndexBytesFinal
	s.MetaBytesRaw += other.MetaBytesRaw
	s.MetaBytesFinal += other.MetaBytesFinal
	s.FilterBytesRaw += other.FilterBytesRaw
	s.FilterBytesFinal += other.FilterBytesFinal
	s.KeyBytesRaw += other.KeyBytesRaw
	s.ValueBytesRaw += other.ValueBytesRaw
	s.NumTables += other.NumTables
	s.NumEpochs += other.NumEpochs
}
