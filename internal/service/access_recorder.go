package service

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/SergeiKhy/shortlink-directory/internal/repository"
	"go.uber.org/zap"
)

// Константы worker pool
const (
	defaultWorkerCount   = 3    // Количество воркеров
	defaultChannelBuffer = 1000 // Размер буфера канала
	maxRetries           = 3    // Максимальное количество попыток записи
	incrementTimeout     = 5 * time.Second
)

// AccessCounter атомарно увеличивает счётчик переходов в хранилище
type AccessCounter interface {
	IncrementAccessCount(ctx context.Context, code string) error
}

// AccessRecorder применяет инкременты счётчика вне пути редиректа
type AccessRecorder interface {
	Start()
	Stop()
	RecordAccess(code string)
	Stats() RecorderStats
}

// RecorderStats статистика worker pool для мониторинга
type RecorderStats struct {
	BufferSize  int   `json:"buffer_size"`  // Общая ёмкость канала
	BufferUsed  int   `json:"buffer_used"`  // Текущее использование
	WorkerCount int   `json:"worker_count"` // Количество воркеров
	Applied     int64 `json:"applied"`      // Успешно записанные инкременты
	Dropped     int64 `json:"dropped"`      // Потерянные из-за переполнения буфера
	Failed      int64 `json:"failed"`       // Не записанные после всех попыток
}

// accessRecorder реализация с использованием Worker Pool
type accessRecorder struct {
	counter     AccessCounter
	logger      *zap.Logger
	events      chan string // Канал коротких кодов
	workerCount int
	wg          sync.WaitGroup

	mu       sync.RWMutex // защищает закрытие канала от параллельной отправки
	stopped  bool
	stopOnce sync.Once

	applied atomic.Int64
	dropped atomic.Int64
	failed  atomic.Int64
}

// NewAccessRecorder создаёт новый экземпляр; нулевые значения заменяются значениями по умолчанию
func NewAccessRecorder(counter AccessCounter, workers, buffer int, logger *zap.Logger) AccessRecorder {
	if workers <= 0 {
		workers = defaultWorkerCount
	}
	if buffer <= 0 {
		buffer = defaultChannelBuffer
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &accessRecorder{
		counter:     counter,
		logger:      logger,
		events:      make(chan string, buffer),
		workerCount: workers,
	}
}

// Start запускает worker pool
func (p *accessRecorder) Start() {
	p.logger.Info("Запуск воркеров счётчика переходов", zap.Int("count", p.workerCount))

	for i := 0; i < p.workerCount; i++ {
		p.wg.Add(1)
		go p.worker(i)
	}
}

// Stop перестаёт принимать события и дожидается записи уже принятых
func (p *accessRecorder) Stop() {
	p.stopOnce.Do(func() {
		p.logger.Info("Остановка счётчика переходов...")
		p.mu.Lock()
		p.stopped = true
		close(p.events)
		p.mu.Unlock()

		p.wg.Wait()
		p.logger.Info("Счётчик переходов остановлен",
			zap.Int64("applied", p.applied.Load()),
			zap.Int64("dropped", p.dropped.Load()),
			zap.Int64("failed", p.failed.Load()),
		)
	})
}

// worker обрабатывает события до закрытия канала
func (p *accessRecorder) worker(id int) {
	defer p.wg.Done()

	p.logger.Debug("Воркер счётчика запущен", zap.Int("id", id))

	for code := range p.events {
		p.processAccess(code)
	}

	p.logger.Debug("Воркер счётчика остановлен", zap.Int("id", id))
}

// processAccess записывает один инкремент с retry логикой
func (p *accessRecorder) processAccess(code string) {
	var err error
	for i := 0; i < maxRetries; i++ {
		ctx, cancel := context.WithTimeout(context.Background(), incrementTimeout)
		err = p.counter.IncrementAccessCount(ctx, code)
		cancel()

		if err == nil {
			p.applied.Add(1)
			return
		}
		if errors.Is(err, repository.ErrLinkNotFound) {
			// Ссылку удалили между редиректом и записью
			p.logger.Debug("Ссылка удалена до записи перехода", zap.String("short_code", code))
			return
		}
		if i < maxRetries-1 {
			p.logger.Debug("Повторная попытка записи перехода",
				zap.String("short_code", code),
				zap.Int("attempt", i+1),
				zap.Error(err),
			)
			time.Sleep(time.Duration(i+1) * 100 * time.Millisecond)
		}
	}

	p.failed.Add(1)
	p.logger.Warn("Не удалось записать переход после всех попыток",
		zap.String("short_code", code),
		zap.Error(err),
	)
}

// RecordAccess ставит инкремент в очередь (неблокирующая операция)
func (p *accessRecorder) RecordAccess(code string) {
	p.mu.RLock()
	defer p.mu.RUnlock()

	if p.stopped {
		p.dropped.Add(1)
		p.logger.Warn("Счётчик остановлен, переход не учтён", zap.String("short_code", code))
		return
	}

	select {
	case p.events <- code:
	default:
		// Канал заполнен, не блокируем редирект, переход теряется
		p.dropped.Add(1)
		p.logger.Warn("Буфер счётчика переходов заполнен, событие потеряно",
			zap.String("short_code", code),
		)
	}
}

// Stats возвращает статистику канала для мониторинга
func (p *accessRecorder) Stats() RecorderStats {
	return RecorderStats{
		BufferSize:  cap(p.events),
		BufferUsed:  len(p.events),
		WorkerCount: p.workerCount,
		Applied:     p.applied.Load(),
		Dropped:     p.dropped.Load(),
		Failed:      p.failed.Load(),
	}
}
