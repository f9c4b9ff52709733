// onboarder — клиент командной строки сервиса онбординга.
//
// Использование:
//
//	onboarder [--api-url URL] [--json] <command> [args] [flags]
//
// Команды:
//
//	submit   Заявка на онбординг URL
//	status   Статус run'а
//	retry    Повтор упавшего шага
//	cancel   Отмена run'а
//	missing  Недостающие извлечения объекта
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/shaiso/onboarder/internal/cli"
)

// version задаётся через ldflags при сборке.
var version = "dev"

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := cli.NewRootCmd(version).ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		cancel()
		os.Exit(1)
	}
}
