package xdb_test

import (
	"math"
	"math/rand"
	"net/netip"
	"os"
	"sort"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ipregion/internal/xdb"
	"ipregion/internal/xdb/xdbtest"
)

var cacheConfigs = map[string]xdb.Config{
	"no cache":     {},
	"header only":  {HeaderCache: true},
	"default":      xdb.DefaultConfig(),
	"total only":   {TotalCache: true},
	"every cache":  {HeaderCache: true, VectorIndexCache: true, TotalCache: true},
	"vector no hd": {VectorIndexCache: true},
}

func openFixture(t *testing.T, ranges []xdbtest.Range, cfg xdb.Config) *xdb.Searcher {
	t.Helper()
	s, err := xdb.Open(xdbtest.WriteFile(t, ranges), cfg)
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func mustIP(t *testing.T, s string) uint32 {
	t.Helper()
	v, err := xdb.ParseIP(s)
	require.NoError(t, err)
	return v
}

func TestSearchScenario(t *testing.T) {
	t.Parallel()

	ranges := xdbtest.Cover([]xdbtest.Range{
		{Start: 3221225472, End: 3221225727, CityID: 0, Region: "中国|华北|北京|北京|联通"},
	})
	want := xdb.Region{Country: "中国", Region: "华北", Province: "北京", City: "北京", ISP: "联通"}

	for name, cfg := range cacheConfigs {
		cfg := cfg
		t.Run(name, func(t *testing.T) {
			t.Parallel()

			s := openFixture(t, ranges, cfg)
			for _, a := range xdb.Algorithms {
				r, err := s.SearchRegion("192.0.0.1", a)
				require.NoError(t, err, a.String())
				assert.Equal(t, want, r, a.String())

				d, err := s.Search("192.0.0.1", a)
				require.NoError(t, err)
				assert.Equal(t, int32(0), d.CityID)
			}
		})
	}
}

func TestSearchBoundaries(t *testing.T) {
	t.Parallel()

	for name, cfg := range cacheConfigs {
		cfg := cfg
		t.Run(name, func(t *testing.T) {
			t.Parallel()

			s := openFixture(t, xdbtest.Sample(), cfg)
			for _, a := range xdb.Algorithms {
				first, err := s.Search("0.0.0.0", a)
				require.NoError(t, err, a.String())
				assert.Equal(t, xdbtest.DefaultRegion, first.Region)

				last, err := s.Search("255.255.255.255", a)
				require.NoError(t, err, a.String())
				assert.Equal(t, xdbtest.DefaultRegion, last.Region)

				edge, err := s.Search("255.255.255.254", a)
				require.NoError(t, err, a.String())
				assert.Equal(t, "0|0|0|保留地址|0", edge.Region)

				high, err := s.Search("128.0.128.1", a)
				require.NoError(t, err, a.String())
				assert.Equal(t, "美国|0|0|0|0", high.Region)
			}
		})
	}
}

func TestSearchSharedDataRecord(t *testing.T) {
	t.Parallel()

	buf := xdbtest.Build(xdbtest.Sample())
	s, err := xdb.NewWithBuffer(buf, xdb.DefaultConfig())
	require.NoError(t, err)

	h, err := s.Header()
	require.NoError(t, err)

	// 找到两个相邻块，确认它们指向同一条数据记录
	var a, b xdb.IndexBlock
	for off := h.IndexStartPtr; off < h.IndexEndPtr; off += xdb.IndexBlockSize {
		x, err := xdb.DecodeIndexBlock(buf[off:])
		require.NoError(t, err)
		if x.StartIP == mustIP(t, "192.0.0.0") {
			a = x
			b, err = xdb.DecodeIndexBlock(buf[off+xdb.IndexBlockSize:])
			require.NoError(t, err)
			break
		}
	}
	require.Equal(t, mustIP(t, "192.0.1.0"), b.StartIP)
	assert.Equal(t, a.DataPtr, b.DataPtr)
	assert.Equal(t, a.DataLen, b.DataLen)

	for _, alg := range xdb.Algorithms {
		x, err := s.Search("192.0.0.77", alg)
		require.NoError(t, err)
		y, err := s.Search("192.0.1.200", alg)
		require.NoError(t, err)
		assert.Equal(t, []byte(x.Region), []byte(y.Region))
	}
}

type countingSource struct {
	xdb.Source
	reads atomic.Int64
}

func (c *countingSource) ReadBlock(off int64, n int) ([]byte, error) {
	c.reads.Add(1)
	return c.Source.ReadBlock(off, n)
}

func TestSearchInvalidAddressDoesNoIO(t *testing.T) {
	t.Parallel()

	for name, cfg := range cacheConfigs {
		cfg := cfg
		t.Run(name, func(t *testing.T) {
			t.Parallel()

			fs, err := xdb.OpenFile(xdbtest.WriteFile(t, xdbtest.Sample()))
			require.NoError(t, err)
			src := &countingSource{Source: fs}
			s, err := xdb.New(src, cfg)
			require.NoError(t, err)
			defer s.Close()

			before := src.reads.Load()
			for _, in := range []string{"1.2.3", "999.1.1.1", "", "not an ip", "1.2.3.4.5"} {
				for _, a := range xdb.Algorithms {
					_, err := s.Search(in, a)
					assert.ErrorIs(t, err, xdb.ErrInvalidAddress, "%q via %s", in, a)
				}
			}
			assert.Equal(t, before, src.reads.Load())
		})
	}
}

func TestSearchCoverageGap(t *testing.T) {
	t.Parallel()

	gapped := []xdbtest.Range{
		{Start: 0, End: 100, Region: "甲|0|0|0|0"},
		{Start: 200, End: math.MaxUint32, Region: "乙|0|0|0|0"},
	}
	path := xdbtest.WriteFile(t, gapped)

	t.Run("binary and memory fail inside the gap", func(t *testing.T) {
		t.Parallel()

		s, err := xdb.Open(path, xdb.Config{HeaderCache: true})
		require.NoError(t, err)
		defer s.Close()
		for _, a := range []xdb.Algorithm{xdb.Binary, xdb.Memory} {
			_, err := s.SearchUint32(150, a)
			assert.ErrorIs(t, err, xdb.ErrCorruptDatabase, a.String())

			d, err := s.SearchUint32(100, a)
			require.NoError(t, err)
			assert.Equal(t, "甲|0|0|0|0", d.Region)
		}
	})

	t.Run("lazy vector index reports the gap", func(t *testing.T) {
		t.Parallel()

		s, err := xdb.Open(path, xdb.Config{})
		require.NoError(t, err)
		defer s.Close()
		_, err = s.SearchUint32(150, xdb.VectorIndexed)
		assert.ErrorIs(t, err, xdb.ErrCorruptDatabase)
		_, err = s.SearchUint32(5, xdb.VectorIndexed)
		assert.ErrorIs(t, err, xdb.ErrCorruptDatabase)
	})

	t.Run("eager vector index refuses to open", func(t *testing.T) {
		t.Parallel()

		_, err := xdb.Open(path, xdb.DefaultConfig())
		assert.ErrorIs(t, err, xdb.ErrCorruptDatabase)
	})
}

func TestVerifyDetectsOverlapAndShortCoverage(t *testing.T) {
	t.Parallel()

	tests := map[string][]xdbtest.Range{
		"overlap": {
			{Start: 0, End: 100, Region: "甲|0|0|0|0"},
			{Start: 50, End: math.MaxUint32, Region: "乙|0|0|0|0"},
		},
		"does not start at zero": {
			{Start: 1, End: math.MaxUint32, Region: "甲|0|0|0|0"},
		},
		"stops early": {
			{Start: 0, End: 0xFFFFFF00, Region: "甲|0|0|0|0"},
		},
		"bad region field count": {
			{Start: 0, End: math.MaxUint32, Region: "甲|0|0"},
		},
	}
	for name, ranges := range tests {
		ranges := ranges
		t.Run(name, func(t *testing.T) {
			t.Parallel()

			s, err := xdb.NewWithBuffer(xdbtest.Build(ranges), xdb.Config{HeaderCache: true})
			require.NoError(t, err)
			_, err = s.Verify()
			assert.ErrorIs(t, err, xdb.ErrCorruptDatabase)
		})
	}
}

func TestSearchCorruptDataPointer(t *testing.T) {
	t.Parallel()

	buf := xdbtest.Build(xdbtest.Sample())
	first := xdb.IndexBlock{StartIP: 0, EndIP: mustIP(t, "0.255.255.255")}

	t.Run("pointer beyond eof", func(t *testing.T) {
		t.Parallel()

		b := append([]byte(nil), buf...)
		blk := first
		blk.DataPtr, blk.DataLen = uint32(len(b)-2), 30
		require.NoError(t, xdb.EncodeIndexBlock(b[xdb.HeaderSize:], blk))

		s, err := xdb.NewWithBuffer(b, xdb.DefaultConfig())
		require.NoError(t, err)
		for _, a := range xdb.Algorithms {
			_, err := s.Search("0.1.2.3", a)
			assert.ErrorIs(t, err, xdb.ErrCorruptDatabase, a.String())
		}
		_, err = s.Verify()
		assert.ErrorIs(t, err, xdb.ErrCorruptDatabase)
	})

	t.Run("data length below city id", func(t *testing.T) {
		t.Parallel()

		b := append([]byte(nil), buf...)
		blk := first
		blk.DataPtr, blk.DataLen = 100, 3
		require.NoError(t, xdb.EncodeIndexBlock(b[xdb.HeaderSize:], blk))

		s, err := xdb.NewWithBuffer(b, xdb.DefaultConfig())
		require.NoError(t, err)
		_, err = s.Search("0.0.0.1", xdb.Binary)
		assert.ErrorIs(t, err, xdb.ErrCorruptDatabase)
	})
}

func TestOpenRejectsBadHeader(t *testing.T) {
	t.Parallel()

	tests := map[string][]byte{
		"too short":        {1, 2, 3},
		"start in header":  xdb.SuperHeader{IndexStartPtr: 4, IndexEndPtr: 4}.Encode(),
		"end before start": append(xdb.SuperHeader{IndexStartPtr: 20, IndexEndPtr: 8}.Encode(), make([]byte, 32)...),
		"unaligned":        append(xdb.SuperHeader{IndexStartPtr: 8, IndexEndPtr: 13}.Encode(), make([]byte, 32)...),
		"beyond eof":       append(xdb.SuperHeader{IndexStartPtr: 8, IndexEndPtr: 20}.Encode(), make([]byte, 12)...),
	}
	for name, raw := range tests {
		name, raw := name, raw
		t.Run(name, func(t *testing.T) {
			t.Parallel()

			_, err := xdb.NewWithBuffer(raw, xdb.Config{})
			require.Error(t, err)
			if name == "too short" {
				assert.ErrorIs(t, err, xdb.ErrIO)
				return
			}
			assert.ErrorIs(t, err, xdb.ErrCorruptDatabase)
		})
	}
}

func TestSearchTruncatedFileIsIOError(t *testing.T) {
	t.Parallel()

	path := xdbtest.WriteFile(t, xdbtest.Sample())
	s, err := xdb.Open(path, xdb.Config{HeaderCache: true})
	require.NoError(t, err)
	defer s.Close()

	require.NoError(t, os.Truncate(path, xdb.HeaderSize))
	_, err = s.Search("8.8.8.8", xdb.Binary)
	assert.ErrorIs(t, err, xdb.ErrIO)
	assert.Equal(t, "io_error", xdb.KindOf(err))
}

func TestOpenMissingFile(t *testing.T) {
	t.Parallel()

	_, err := xdb.Open(t.TempDir()+"/missing.db", xdb.DefaultConfig())
	assert.ErrorIs(t, err, xdb.ErrIO)
	_, err = xdb.Open(t.TempDir()+"/missing.db", xdb.Config{TotalCache: true})
	assert.ErrorIs(t, err, xdb.ErrIO)
}

func TestSearchAddrAndUnsupportedAlgorithm(t *testing.T) {
	t.Parallel()

	s := openFixture(t, xdbtest.Sample(), xdb.DefaultConfig())

	d, err := s.SearchAddr(netip.MustParseAddr("::ffff:8.8.8.8"), xdb.VectorIndexed)
	require.NoError(t, err)
	assert.Equal(t, "美国|0|0|0|Level3", d.Region)

	_, err = s.SearchAddr(netip.MustParseAddr("2001:4860::8888"), xdb.VectorIndexed)
	assert.ErrorIs(t, err, xdb.ErrInvalidAddress)

	_, err = s.Search("8.8.8.8", xdb.Algorithm(0))
	assert.Error(t, err)
}

// generate 随机切分整个地址空间，混合大段与同一 /16 内的小段
func generate(seed int64) []xdbtest.Range {
	rnd := rand.New(rand.NewSource(seed))
	pool := []string{
		"中国|0|广东省|深圳市|电信", "中国|0|北京|北京市|联通", "美国|0|加利福尼亚|0|0",
		"日本|0|东京都|东京|0", "0|0|0|内网IP|内网IP", "德国|0|黑森|法兰克福|0",
	}
	var out []xdbtest.Range
	next := uint64(0)
	for next <= math.MaxUint32 {
		size := uint64(1 + rnd.Intn(1<<20))
		if rnd.Intn(4) == 0 {
			size = uint64(1 + rnd.Intn(256))
		}
		end := next + size - 1
		if end > math.MaxUint32 {
			end = math.MaxUint32
		}
		out = append(out, xdbtest.Range{
			Start:  uint32(next),
			End:    uint32(end),
			CityID: int32(rnd.Intn(3)),
			Region: pool[rnd.Intn(len(pool))],
		})
		next = end + 1
	}
	return out
}

func expected(ranges []xdbtest.Range, ip uint32) string {
	i := sort.Search(len(ranges), func(i int) bool { return ranges[i].End >= ip })
	return ranges[i].Region
}

func TestCrossAlgorithmConsistency(t *testing.T) {
	t.Parallel()

	ranges := generate(42)
	require.Greater(t, len(ranges), 4096, "need more blocks than one scan chunk")

	mem, err := xdb.NewWithBuffer(xdbtest.Build(ranges), xdb.DefaultConfig())
	require.NoError(t, err)
	st, err := mem.Verify()
	require.NoError(t, err)
	assert.Equal(t, len(ranges), st.Blocks)
	assert.LessOrEqual(t, st.DataRecords, 18)

	file := openFixture(t, ranges, xdb.Config{HeaderCache: true, VectorIndexCache: true})

	for i, r := range ranges {
		mid := uint32((uint64(r.Start) + uint64(r.End)) / 2)
		for _, ip := range [3]uint32{r.Start, mid, r.End} {
			for _, a := range xdb.Algorithms {
				d, err := mem.SearchUint32(ip, a)
				require.NoError(t, err)
				require.Equal(t, r.Region, d.Region, "%s via %s", xdb.FormatIP(ip), a)
				require.Equal(t, r.CityID, d.CityID)
			}
			if i%16 == 0 {
				for _, a := range []xdb.Algorithm{xdb.VectorIndexed, xdb.Binary} {
					d, err := file.SearchUint32(ip, a)
					require.NoError(t, err)
					require.Equal(t, r.Region, d.Region, "%s via file %s", xdb.FormatIP(ip), a)
				}
			}
		}
	}

	rnd := rand.New(rand.NewSource(7))
	for i := 0; i < 2000; i++ {
		ip := rnd.Uint32()
		want := expected(ranges, ip)
		for _, a := range xdb.Algorithms {
			d, err := file.SearchUint32(ip, a)
			require.NoError(t, err)
			require.Equal(t, want, d.Region, "%s via %s", xdb.FormatIP(ip), a)
		}
	}
}

func TestSearcherConcurrentFileReads(t *testing.T) {
	t.Parallel()

	ranges := generate(3)
	s := openFixture(t, ranges, xdb.Config{HeaderCache: true})

	var wg sync.WaitGroup
	errs := make(chan error, 8)
	for g := 0; g < 8; g++ {
		wg.Add(1)
		go func(seed int64) {
			defer wg.Done()
			rnd := rand.New(rand.NewSource(seed))
			for i := 0; i < 500; i++ {
				ip := rnd.Uint32()
				// 向量网格与整库缓冲在并发首次使用时只加载一次
				a := xdb.Algorithms[i%len(xdb.Algorithms)]
				d, err := s.SearchUint32(ip, a)
				if err != nil {
					errs <- err
					return
				}
				if d.Region != expected(ranges, ip) {
					errs <- assert.AnError
					return
				}
			}
		}(int64(g))
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		require.NoError(t, err)
	}
}

func TestSearcherCloseIsIdempotent(t *testing.T) {
	t.Parallel()

	s, err := xdb.Open(xdbtest.WriteFile(t, xdbtest.Sample()), xdb.DefaultConfig())
	require.NoError(t, err)
	require.NoError(t, s.Close())
	require.NoError(t, s.Close())

	_, err = s.Search("8.8.8.8", xdb.Binary)
	assert.ErrorIs(t, err, xdb.ErrIO)
}
