package tracking

import "sync"

// keyedMutex — взаимное исключение по ID tracked order-а. Две параллельные
// мутации одного заказа иначе прочитают один и тот же "старый" статус и
// либо продублируют, либо потеряют нотификацию. Разные заказы идут
// параллельно, глобальной блокировки нет.
type keyedMutex struct {
	mu    sync.Mutex
	locks map[uint64]*lockEntry
}

type lockEntry struct {
	mu   sync.Mutex
	refs int
}

func newKeyedMutex() *keyedMutex {
	return &keyedMutex{locks: map[uint64]*lockEntry{}}
}

// lock блокирует ключ и возвращает функцию разблокировки. Записи с нулевым
// числом держателей удаляются из карты, чтобы она не росла с числом
// когда-либо виденных заказов.
func (k *keyedMutex) lock(id uint64) (unlock func()) {
	k.mu.Lock()
	e, ok := k.locks[id]
	if !ok {
		e = &lockEntry{}
		k.locks[id] = e
	}
	e.refs++
	k.mu.Unlock()

	e.mu.Lock()

	var once sync.Once
	return func() {
		once.Do(func() {
			e.mu.Unlock()
			k.mu.Lock()
			e.refs--
			if e.refs == 0 {
				delete(k.locks, id)
			}
			k.mu.Unlock()
		})
	}
}
