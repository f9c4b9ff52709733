// Package domain содержит модель онбординга: run, состояния шагов,
// решение о кэше и долговременную проекцию run'а.
package domain
