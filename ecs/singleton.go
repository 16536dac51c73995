package ecs

import (
	"reflect"
	"unsafe"
)

// singletonEntry owns the heap copy of a singleton component.
type singletonEntry struct {
	value   reflect.Value // pointer to the component
	dataPtr unsafe.Pointer
}

func newSingletonEntry(componentType reflect.Type, value reflect.Value) *singletonEntry {
	ptr := reflect.New(componentType)
	if value.IsValid() {
		ptr.Elem().Set(value)
	}
	return &singletonEntry{
		value:   ptr,
		dataPtr: ptr.UnsafePointer(),
	}
}

// set overwrites the singleton value in place, keeping cached pointers valid.
func (e *singletonEntry) set(value reflect.Value) {
	e.value.Elem().Set(value)
}

// AddSingleton stores a singleton component. If a singleton of the same type
// already exists its value is overwritten in place.
func (s *Storage) AddSingleton(component any) {
	value := reflect.ValueOf(component)
	if value.Kind() == reflect.Ptr {
		value = value.Elem()
	}
	componentType := value.Type()

	if entry, ok := s.singletons[componentType]; ok {
		entry.set(value)
		return
	}
	s.singletons[componentType] = newSingletonEntry(componentType, value)
}

// RemoveSingleton deletes the singleton of the given type.
func (s *Storage) RemoveSingleton(componentType reflect.Type) bool {
	if _, ok := s.singletons[componentType]; !ok {
		return false
	}
	delete(s.singletons, componentType)
	s.singletonGeneration++
	return true
}

// ReadSingleton points target (a **T) at the stored singleton of type T.
// Returns false and sets *target to nil when no such singleton exists.
func (s *Storage) ReadSingleton(target any) bool {
	rv := reflect.ValueOf(target)
	if rv.Kind() != reflect.Ptr || rv.Elem().Kind() != reflect.Ptr {
		panic("ReadSingleton target must be a pointer to a pointer")
	}

	componentType := rv.Elem().Type().Elem()
	entry := s.getSingletonEntry(componentType)
	if entry == nil {
		rv.Elem().Set(reflect.Zero(rv.Elem().Type()))
		return false
	}

	rv.Elem().Set(reflect.NewAt(componentType, entry.dataPtr))
	return true
}

func (s *Storage) getSingletonEntry(componentType reflect.Type) *singletonEntry {
	return s.singletons[componentType]
}

// Singleton provides efficient access to a single component instance
// that is not associated with any entity. Use this for global game state,
// configuration, or other singleton data.
type Singleton[T any] struct {
	storage       *Storage
	componentPtr  unsafe.Pointer
	componentType reflect.Type
	generation    uint64
}

// NewSingleton creates a new Singleton accessor for the given storage.
// If initializer is provided and the singleton doesn't exist in storage,
// it will be created with the initializer value. Otherwise, a zero value is used.
// This guarantees the singleton exists in storage after the call.
func NewSingleton[T any](storage *Storage, initializer ...T) *Singleton[T] {
	componentType := reflect.TypeFor[T]()

	entry := storage.getSingletonEntry(componentType)
	if entry == nil {
		var value T
		if len(initializer) > 0 {
			value = initializer[0]
		}
		storage.AddSingleton(value)
		entry = storage.getSingletonEntry(componentType)
	}

	return &Singleton[T]{
		storage:       storage,
		componentPtr:  entry.dataPtr,
		componentType: componentType,
		generation:    storage.singletonGeneration,
	}
}

// Init initializes the Singleton with a storage reference.
// This is called automatically by the Scheduler during system registration.
func (s *Singleton[T]) Init(storage *Storage) {
	s.storage = storage
	s.componentType = reflect.TypeFor[T]()
	s.updateCache()
}

// Get returns a pointer to the singleton component.
// Returns nil if the singleton has not been added to storage.
func (s *Singleton[T]) Get() *T {
	if s.componentPtr == nil || s.stale() {
		s.updateCache()
	}
	if s.componentPtr == nil {
		return nil
	}
	return (*T)(s.componentPtr)
}

// stale reports whether singletons were removed since the pointer was cached.
func (s *Singleton[T]) stale() bool {
	return s.storage != nil && s.storage.singletonGeneration != s.generation
}

// updateCache refreshes the cached pointer from storage
func (s *Singleton[T]) updateCache() {
	if s.storage == nil {
		return
	}
	s.generation = s.storage.singletonGeneration
	entry := s.storage.getSingletonEntry(s.componentType)
	if entry != nil {
		s.componentPtr = entry.dataPtr
	} else {
		s.componentPtr = nil
	}
}

// Exists returns true if the singleton component has been added to storage
func (s *Singleton[T]) Exists() bool {
	return s.Get() != nil
}
