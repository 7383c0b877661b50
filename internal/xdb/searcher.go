package xdb

import (
	"fmt"
	"net/netip"
	"sync"
	"time"

	"ipregion/internal/logger"
)

// Searcher：在一个数据源上执行三种检索算法
// 约束：构造完成后只读，可被多个 goroutine 共享；向量网格与整库缓冲未预加载时在首次使用时加载一次
type Searcher struct {
	src    Source
	cfg    Config
	header *SuperHeader

	vecOnce sync.Once
	vector  *VectorIndex
	vecErr  error

	memOnce sync.Once
	mem     *MemorySource
	memErr  error

	closeOnce sync.Once
	closeErr  error
}

// Open：按配置打开库文件；TotalCache 时整库读入内存，否则按需读取文件
func Open(path string, cfg Config) (*Searcher, error) {
	var src Source
	var err error
	if cfg.TotalCache {
		src, err = LoadMemorySource(path)
	} else {
		src, err = OpenFile(path)
	}
	if err != nil {
		return nil, err
	}
	s, err := New(src, cfg)
	if err != nil {
		src.Close()
		return nil, err
	}
	logger.L().Debug("xdb_open", "path", path, "size", src.Size(), "cache", cfg.String())
	return s, nil
}

// NewWithBuffer：基于已加载的整库缓冲构造
func NewWithBuffer(buf []byte, cfg Config) (*Searcher, error) {
	return New(NewMemorySource(buf), cfg)
}

// New：在任意数据源上构造 Searcher 并按配置预加载
// 约束：文件头总会在构造时校验一次；预加载失败时返回错误，调用方负责关闭 src
func New(src Source, cfg Config) (*Searcher, error) {
	s := &Searcher{src: src, cfg: cfg}
	if m, ok := src.(*MemorySource); ok {
		s.mem = m
		s.memOnce.Do(func() {})
	} else if cfg.TotalCache {
		m, err := s.memory()
		if err != nil {
			return nil, err
		}
		s.src = m
		_ = src.Close()
	}
	h, err := readSuperHeader(s.src)
	if err != nil {
		return nil, err
	}
	if cfg.HeaderCache || cfg.VectorIndexCache || cfg.TotalCache {
		s.header = &h
	}
	if cfg.VectorIndexCache {
		if _, err := s.vectorIndex(); err != nil {
			return nil, err
		}
	}
	logger.L().Debug("xdb_searcher_ready", "blocks", h.BlockCount(), "cache", cfg.String())
	return s, nil
}

// Config 返回构造时的预加载策略
func (s *Searcher) Config() Config { return s.cfg }

// Size 数据源字节数
func (s *Searcher) Size() int64 { return s.src.Size() }

// Header：返回文件头（已缓存时不产生 I/O）
func (s *Searcher) Header() (SuperHeader, error) { return s.superHeader(s.src) }

// Search：按点分十进制地址检索；非法地址在任何 I/O 之前失败
func (s *Searcher) Search(ip string, algo Algorithm) (DataBlock, error) {
	v, err := ParseIP(ip)
	if err != nil {
		return DataBlock{}, err
	}
	return s.SearchUint32(v, algo)
}

// SearchAddr：按 netip.Addr 检索，仅接受 IPv4 或 IPv4 映射地址
func (s *Searcher) SearchAddr(addr netip.Addr, algo Algorithm) (DataBlock, error) {
	v, err := AddrToUint32(addr)
	if err != nil {
		return DataBlock{}, err
	}
	return s.SearchUint32(v, algo)
}

// SearchRegion：检索并拆分为五段
func (s *Searcher) SearchRegion(ip string, algo Algorithm) (Region, error) {
	d, err := s.Search(ip, algo)
	if err != nil {
		return Region{}, err
	}
	return d.Location()
}

// SearchUint32：按整数地址检索
func (s *Searcher) SearchUint32(ip uint32, algo Algorithm) (DataBlock, error) {
	switch algo {
	case VectorIndexed:
		v, err := s.vectorIndex()
		if err != nil {
			return DataBlock{}, err
		}
		low, high := v.Window(ip)
		return s.binarySearch(s.src, ip, low, high)
	case Binary:
		h, err := s.superHeader(s.src)
		if err != nil {
			return DataBlock{}, err
		}
		return s.binarySearch(s.src, ip, h.IndexStartPtr, h.IndexEndPtr)
	case Memory:
		m, err := s.memory()
		if err != nil {
			return DataBlock{}, err
		}
		h, err := s.superHeader(m)
		if err != nil {
			return DataBlock{}, err
		}
		return s.binarySearch(m, ip, h.IndexStartPtr, h.IndexEndPtr)
	}
	return DataBlock{}, fmt.Errorf("xdb: unsupported algorithm %s", algo)
}

// binarySearch：在 [low, high]（块偏移，均含）内二分定位覆盖 ip 的索引块
// 约束：窗口耗尽说明覆盖不变量被破坏，返回 ErrCorruptDatabase 而非“未找到”
func (s *Searcher) binarySearch(src Source, ip, low, high uint32) (DataBlock, error) {
	if high < low || (high-low)%IndexBlockSize != 0 {
		return DataBlock{}, fmt.Errorf("%w: bad search window [%d,%d]", ErrCorruptDatabase, low, high)
	}
	l, h := 0, int((high-low)/IndexBlockSize)
	for l <= h {
		m := int(uint(l+h) >> 1)
		off := low + uint32(m)*IndexBlockSize
		buf, err := src.ReadBlock(int64(off), IndexBlockSize)
		if err != nil {
			return DataBlock{}, err
		}
		b, err := DecodeIndexBlock(buf)
		if err != nil {
			return DataBlock{}, err
		}
		switch {
		case ip < b.StartIP:
			h = m - 1
		case ip > b.EndIP:
			l = m + 1
		default:
			return readData(src, b)
		}
	}
	return DataBlock{}, fmt.Errorf("%w: no index block covers %s", ErrCorruptDatabase, FormatIP(ip))
}

// readData：按索引块的 (dataPtr, dataLen) 读取并解码数据记录
func readData(src Source, b IndexBlock) (DataBlock, error) {
	n := int(b.DataLen)
	if n < cityIDSize {
		return DataBlock{}, fmt.Errorf("%w: data length %d at %d", ErrCorruptDatabase, n, b.DataPtr)
	}
	if int64(b.DataPtr)+int64(n) > src.Size() {
		return DataBlock{}, fmt.Errorf("%w: data pointer %d+%d beyond EOF %d", ErrCorruptDatabase, b.DataPtr, n, src.Size())
	}
	buf, err := src.ReadBlock(int64(b.DataPtr), n)
	if err != nil {
		return DataBlock{}, err
	}
	return DecodeDataBlock(buf, n)
}

func readSuperHeader(src Source) (SuperHeader, error) {
	buf, err := src.ReadBlock(0, HeaderSize)
	if err != nil {
		return SuperHeader{}, err
	}
	h, err := DecodeSuperHeader(buf)
	if err != nil {
		return SuperHeader{}, err
	}
	if err := h.Validate(src.Size()); err != nil {
		return SuperHeader{}, err
	}
	return h, nil
}

func (s *Searcher) superHeader(src Source) (SuperHeader, error) {
	if s.header != nil {
		return *s.header, nil
	}
	return readSuperHeader(src)
}

func (s *Searcher) vectorIndex() (*VectorIndex, error) {
	s.vecOnce.Do(func() {
		start := time.Now()
		h, err := s.superHeader(s.src)
		if err != nil {
			s.vecErr = err
			return
		}
		s.vector, s.vecErr = BuildVectorIndex(s.src, h)
		if s.vecErr != nil {
			logger.L().Error("xdb_vector_build_error", "err", s.vecErr)
			return
		}
		logger.L().Debug("xdb_vector_build_done", "blocks", h.BlockCount(), "duration_ms", time.Since(start).Milliseconds())
	})
	return s.vector, s.vecErr
}

func (s *Searcher) memory() (*MemorySource, error) {
	s.memOnce.Do(func() {
		buf, err := s.src.ReadBlock(0, int(s.src.Size()))
		if err != nil {
			s.memErr = err
			return
		}
		s.mem = NewMemorySource(buf)
		logger.L().Debug("xdb_total_cache_loaded", "size", len(buf))
	})
	return s.mem, s.memErr
}

// Stats：全量校验的统计结果
type Stats struct {
	Header      SuperHeader
	Size        int64
	Blocks      int
	DataRecords int
}

// Verify：扫描全部索引块，校验覆盖不变量并解码每条被引用的数据记录
func (s *Searcher) Verify() (Stats, error) {
	h, err := s.superHeader(s.src)
	if err != nil {
		return Stats{}, err
	}
	st := Stats{Header: h, Size: s.src.Size()}
	seen := make(map[uint32]struct{})
	var cov coverage
	err = scanIndex(s.src, h, func(off uint32, b IndexBlock) error {
		if err := cov.add(b); err != nil {
			return err
		}
		st.Blocks++
		key := PackDataPtr(b.DataPtr, b.DataLen)
		if _, ok := seen[key]; ok {
			return nil
		}
		seen[key] = struct{}{}
		d, err := readData(s.src, b)
		if err != nil {
			return fmt.Errorf("block at %d: %w", off, err)
		}
		if _, err := d.Location(); err != nil {
			return fmt.Errorf("block at %d: %w", off, err)
		}
		return nil
	})
	if err != nil {
		return st, err
	}
	if err := cov.finish(); err != nil {
		return st, err
	}
	st.DataRecords = len(seen)
	return st, nil
}

// Close：释放数据源；多次调用安全
func (s *Searcher) Close() error {
	s.closeOnce.Do(func() {
		s.closeErr = s.src.Close()
	})
	return s.closeErr
}
